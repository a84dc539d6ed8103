package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

const Version = 1

type Header struct {
	Version int    `json:"version"`
	WorldID string `json:"world_id"`
	Tick    uint64 `json:"tick"`
}

// SnapshotV1 is the persisted world. Replication templates are not part of
// it: a container only carries its Replicating flag and the templates are
// rebuilt from its items after load.
type SnapshotV1 struct {
	Header Header `json:"header"`

	TickRate           int    `json:"tick_rate_hz"`
	SnapshotEveryTicks int    `json:"snapshot_every_ticks,omitempty"`
	ItemTTLTicks       uint64 `json:"item_ttl_ticks,omitempty"`

	ItemsDigest      string `json:"items_digest,omitempty"`
	ContainersDigest string `json:"containers_digest,omitempty"`

	NextItemNum uint64 `json:"next_item_num"`

	Containers []ContainerV1  `json:"containers"`
	Items      []ItemEntityV1 `json:"items,omitempty"`
}

type ContainerV1 struct {
	Type        string   `json:"type"`
	Pos         [3]int   `json:"pos"`
	Items       []string `json:"items,omitempty"`
	CapacityKg  float64  `json:"capacity_kg"`
	UserMaxKg   float64  `json:"user_max_kg"`
	Replicating bool     `json:"replicating,omitempty"`
}

type ItemEntityV1 struct {
	EntityID     string  `json:"entity_id"`
	Item         string  `json:"item"`
	Name         string  `json:"name"`
	Mass         float64 `json:"mass"`
	Temperature  float64 `json:"temperature"`
	DiseaseIdx   uint8   `json:"disease_idx"`
	DiseaseCount int     `json:"disease_count,omitempty"`
	Consumable   bool    `json:"consumable,omitempty"`
	Container    string  `json:"container,omitempty"`
	Dropped      bool    `json:"dropped,omitempty"`
	Pos          [3]int  `json:"pos"`
	Active       bool    `json:"active,omitempty"`
	CreatedTick  uint64  `json:"created_tick"`
	ExpiresTick  uint64  `json:"expires_tick,omitempty"`
}

// WriteSnapshot writes a JSON header line followed by the gob-encoded
// snapshot, all zstd-compressed. The file is written next to path and
// renamed into place.
func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if err := encode(f, snap); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func encode(f *os.File, snap SnapshotV1) error {
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, err := json.Marshal(snap.Header)
	if err != nil {
		_ = enc.Close()
		return err
	}
	if _, err := bw.Write(append(hb, '\n')); err != nil {
		_ = enc.Close()
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		_ = enc.Close()
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		_ = enc.Close()
		return err
	}
	return enc.Close()
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// The gob body repeats the header.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("header: %w", err)
	}
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	return snap, nil
}

// ReadHeader decodes only the leading header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("header: %w", err)
	}
	return h, nil
}
