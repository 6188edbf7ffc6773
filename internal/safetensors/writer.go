package safetensors

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"os"
	"sort"

	bfloat16 "github.com/d4l3k/go-bfloat16"
	"github.com/pkg/errors"
	"github.com/x448/float16"

	"github.com/born-ml/blockwise/internal/tensor"
)

// Write stores tensors and integer id sequences in one file.
//
// Entries are laid out in alphabetical order by name. A name may appear in
// tensors or ids, not both.
func Write(path string, tensors map[string]*tensor.Tensor, ids map[string][]int32, metadata map[string]string) error {
	names := make([]string, 0, len(tensors)+len(ids))
	for name := range tensors {
		names = append(names, name)
	}
	for name := range ids {
		if _, dup := tensors[name]; dup {
			return errors.Errorf("name %q used for both a tensor and an id sequence", name)
		}
		names = append(names, name)
	}
	sort.Strings(names)

	hdr := make(map[string]any, len(names)+1)
	if len(metadata) > 0 {
		hdr["__metadata__"] = metadata
	}

	var data bytes.Buffer
	for _, name := range names {
		start := int64(data.Len())
		var info Info
		if t, ok := tensors[name]; ok {
			info = Info{DType: fromDataType(t.DType()), Shape: t.Shape().Clone()}
			if err := encodeTensor(&data, t); err != nil {
				return errors.Wrapf(err, "encoding tensor %s", name)
			}
		} else {
			info = Info{DType: I32, Shape: []int{len(ids[name])}}
			if err := binary.Write(&data, binary.LittleEndian, ids[name]); err != nil {
				return errors.Wrapf(err, "encoding ids %s", name)
			}
		}
		info.DataOffsets = [2]int64{start, int64(data.Len())}
		hdr[name] = info
	}

	headerJSON, err := json.Marshal(hdr)
	if err != nil {
		return errors.Wrap(err, "marshal header")
	}
	// The data section starts 8-byte aligned.
	if pad := len(headerJSON) % 8; pad != 0 {
		headerJSON = append(headerJSON, bytes.Repeat([]byte(" "), 8-pad)...)
	}

	//nolint:gosec // G304: path is supplied by the user on purpose.
	file, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create")
	}
	defer func() {
		_ = file.Close() // Best effort; Sync below reports write errors.
	}()

	if err := binary.Write(file, binary.LittleEndian, uint64(len(headerJSON))); err != nil {
		return errors.Wrap(err, "write header size")
	}
	if _, err := file.Write(headerJSON); err != nil {
		return errors.Wrap(err, "write header")
	}
	if _, err := data.WriteTo(file); err != nil {
		return errors.Wrap(err, "write data")
	}
	return errors.Wrap(file.Sync(), "sync")
}

func encodeTensor(w *bytes.Buffer, t *tensor.Tensor) error {
	switch t.DType() {
	case tensor.Float16:
		u16s := make([]uint16, t.NumElements())
		for i, v := range t.Data() {
			u16s[i] = float16.Fromfloat32(v).Bits()
		}
		return binary.Write(w, binary.LittleEndian, u16s)
	case tensor.BFloat16:
		_, err := w.Write(bfloat16.EncodeFloat32(t.Data()))
		return err
	default:
		return binary.Write(w, binary.LittleEndian, t.Data())
	}
}
