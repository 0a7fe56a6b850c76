package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/cuemby/itemstored/internal/model"
)

// DefaultExternalPayloadThreshold is the inline-part size limit (bytes)
// at or above which payload bytes move into an external file under the
// store's payload directory.
const DefaultExternalPayloadThreshold = 4096

// SetExternalPayloadThreshold overrides the spill threshold; 0 restores
// the default.
func (s *Store) SetExternalPayloadThreshold(n int64) {
	if n <= 0 {
		n = DefaultExternalPayloadThreshold
	}
	s.payloadThreshold = n
}

// spillParts moves any inline payload part at or above the threshold
// into a file named by a monotonically allocated id suffixed with the
// part's version; the part
// record keeps only the filename. Runs inside the caller's write
// transaction so the id allocation commits atomically with the item.
func (s *Store) spillParts(t *Tx, it *model.Item) error {
	if s.payloadDir == "" {
		return nil
	}
	for i := range it.Parts {
		p := &it.Parts[i]
		if !p.IsPayload() || p.Storage != model.StorageInline {
			continue
		}
		if int64(len(p.Data)) < s.payloadThreshold {
			continue
		}
		fid, err := t.btx.Bucket(bucketParts).NextSequence()
		if err != nil {
			return fmt.Errorf("allocate payload file id: %w", err)
		}
		name := fmt.Sprintf("%d_r%d", fid, p.Version)
		if err := os.WriteFile(filepath.Join(s.payloadDir, name), p.Data, 0o600); err != nil {
			return fmt.Errorf("write payload file %s: %w", name, err)
		}
		p.Storage = model.StorageExternal
		p.ExternalFile = name
		p.Size = int64(len(p.Data))
		p.Data = nil
	}
	return nil
}

// HydrateParts returns parts with external payload bytes loaded back
// into Data; parts without a local payload file pass through unchanged.
func (s *Store) HydrateParts(parts []model.Part) ([]model.Part, error) {
	out := append([]model.Part(nil), parts...)
	for i := range out {
		p := &out[i]
		if p.Storage != model.StorageExternal || p.ExternalFile == "" || len(p.Data) > 0 {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.payloadDir, p.ExternalFile))
		if err != nil {
			return nil, fmt.Errorf("read payload file %s: %w", p.ExternalFile, err)
		}
		p.Data = data
	}
	return out, nil
}

// removePartFiles deletes the payload files an item references. Best
// effort: a file already gone is not an error worth failing a delete
// over.
func (s *Store) removePartFiles(it *model.Item) {
	if s.payloadDir == "" {
		return
	}
	for _, p := range it.Parts {
		if p.ExternalFile == "" {
			continue
		}
		_ = os.Remove(filepath.Join(s.payloadDir, p.ExternalFile))
	}
}
