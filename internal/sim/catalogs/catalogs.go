package catalogs

import (
	"bytes"
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed defaults/*.json
var defaultFS embed.FS

//go:embed schemas/*.schema.json
var schemaFS embed.FS

const schemaBaseURL = "https://magicstore.ai/schemas/"

type Catalogs struct {
	Items      ItemCatalog
	Containers ContainerCatalog
}

type ItemCatalog struct {
	Palette []string
	Defs    map[string]ItemDef
	Digest  string
}

type ItemDef struct {
	ID                 string  `json:"id"`
	Name               string  `json:"name"`
	Kind               string  `json:"kind"` // "FOOD","MATERIAL","LIQUID","GAS","SEED"
	Consumable         bool    `json:"consumable,omitempty"`
	DefaultMass        float64 `json:"default_mass,omitempty"`
	DefaultTemperature float64 `json:"default_temperature,omitempty"`
}

type ContainerCatalog struct {
	Palette []string
	Defs    map[string]ContainerDef
	Digest  string
}

// ContainerDef describes a container category. Replicable is the kind filter:
// only categories built for intentional storage may replicate.
type ContainerDef struct {
	ID                  string  `json:"id"`
	Name                string  `json:"name"`
	Replicable          bool    `json:"replicable,omitempty"`
	FlowMetered         bool    `json:"flow_metered,omitempty"`
	CapacityKg          float64 `json:"capacity_kg"`
	AdjustableCapacity  bool    `json:"adjustable_capacity,omitempty"`
	DefaultUserMaxKg    float64 `json:"default_user_max_kg,omitempty"`
	DefaultUserMaxToMax bool    `json:"default_user_max_to_max,omitempty"`
	ShowInUI            bool    `json:"show_in_ui,omitempty"`
}

// Load reads items.json and containers.json from configDir.
func Load(configDir string) (*Catalogs, error) {
	items, err := os.ReadFile(filepath.Join(configDir, "items.json"))
	if err != nil {
		return nil, err
	}
	containers, err := os.ReadFile(filepath.Join(configDir, "containers.json"))
	if err != nil {
		return nil, err
	}
	return parse(items, containers)
}

// Defaults returns the catalogs compiled into the binary.
func Defaults() (*Catalogs, error) {
	items, err := defaultFS.ReadFile("defaults/items.json")
	if err != nil {
		return nil, err
	}
	containers, err := defaultFS.ReadFile("defaults/containers.json")
	if err != nil {
		return nil, err
	}
	return parse(items, containers)
}

func parse(itemsRaw, containersRaw []byte) (*Catalogs, error) {
	var c Catalogs
	if err := validate("items.schema.json", "items.json", itemsRaw); err != nil {
		return nil, err
	}
	if err := validate("containers.schema.json", "containers.json", containersRaw); err != nil {
		return nil, err
	}
	if err := loadItems(itemsRaw, &c.Items); err != nil {
		return nil, err
	}
	if err := loadContainers(containersRaw, &c.Containers); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalogs) Item(id string) (ItemDef, bool) {
	if c == nil {
		return ItemDef{}, false
	}
	d, ok := c.Items.Defs[id]
	return d, ok
}

func (c *Catalogs) Container(id string) (ContainerDef, bool) {
	if c == nil {
		return ContainerDef{}, false
	}
	d, ok := c.Containers.Defs[id]
	return d, ok
}

func validate(schemaName, fileName string, raw []byte) error {
	schemaRaw, err := schemaFS.ReadFile("schemas/" + schemaName)
	if err != nil {
		return err
	}
	url := schemaBaseURL + schemaName
	comp := jsonschema.NewCompiler()
	if err := comp.AddResource(url, bytes.NewReader(schemaRaw)); err != nil {
		return fmt.Errorf("%s: %w", schemaName, err)
	}
	schema, err := comp.Compile(url)
	if err != nil {
		return fmt.Errorf("%s: %w", schemaName, err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("%s: %w", fileName, err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("%s: %w", fileName, err)
	}
	return nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func loadItems(raw []byte, out *ItemCatalog) error {
	out.Digest = sha256Hex(raw)

	var defs []ItemDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("items.json: %w", err)
	}
	out.Defs = map[string]ItemDef{}
	for _, d := range defs {
		if _, dup := out.Defs[d.ID]; dup {
			return fmt.Errorf("items.json: duplicate id %s", d.ID)
		}
		if d.DefaultMass == 0 {
			d.DefaultMass = 1
		}
		out.Defs[d.ID] = d
	}
	out.Palette = sortedKeys(out.Defs)
	return nil
}

func loadContainers(raw []byte, out *ContainerCatalog) error {
	out.Digest = sha256Hex(raw)

	var defs []ContainerDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("containers.json: %w", err)
	}
	out.Defs = map[string]ContainerDef{}
	for _, d := range defs {
		if _, dup := out.Defs[d.ID]; dup {
			return fmt.Errorf("containers.json: duplicate id %s", d.ID)
		}
		if d.DefaultUserMaxKg == 0 || d.DefaultUserMaxKg > d.CapacityKg {
			d.DefaultUserMaxKg = d.CapacityKg
		}
		out.Defs[d.ID] = d
	}
	out.Palette = sortedKeys(out.Defs)
	return nil
}

func sortedKeys[T any](m map[string]T) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
