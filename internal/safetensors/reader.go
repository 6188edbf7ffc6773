package safetensors

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"io"
	"os"
	"sort"

	bfloat16 "github.com/d4l3k/go-bfloat16"
	"github.com/pkg/errors"
	"github.com/x448/float16"

	"github.com/born-ml/blockwise/internal/tensor"
)

// Reader reads tensors from a SafeTensors file.
type Reader struct {
	file       *os.File
	header     header
	dataOffset int64
	dataSize   int64
}

// Open opens path and parses its header.
func Open(path string) (*Reader, error) {
	//nolint:gosec // G304: path is supplied by the user on purpose.
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open")
	}

	r, err := newReader(file)
	if err != nil {
		_ = file.Close()
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	return r, nil
}

func newReader(file *os.File) (*Reader, error) {
	var headerSize uint64
	if err := binary.Read(file, binary.LittleEndian, &headerSize); err != nil {
		return nil, errors.Wrap(err, "header size")
	}
	if headerSize > maxHeaderSize {
		return nil, errors.Wrapf(ErrHeaderTooLarge, "%d bytes", headerSize)
	}

	raw := make([]byte, headerSize)
	if _, err := io.ReadFull(file, raw); err != nil {
		return nil, errors.Wrap(err, "header")
	}
	var h header
	if err := json.Unmarshal(bytes.TrimRight(raw, " "), &h); err != nil {
		return nil, errors.Wrap(err, "header JSON")
	}

	stat, err := file.Stat()
	if err != nil {
		return nil, errors.Wrap(err, "stat")
	}
	dataOffset := int64(8 + headerSize) //nolint:gosec // G115: bounded by maxHeaderSize.
	r := &Reader{file: file, header: h, dataOffset: dataOffset, dataSize: stat.Size() - dataOffset}

	for name, info := range h.Tensors {
		if info.DataOffsets[0] < 0 || info.DataOffsets[1] < info.DataOffsets[0] || info.DataOffsets[1] > r.dataSize {
			return nil, errors.Wrapf(ErrOutOfBounds, "tensor %s: offsets %v, data section %d bytes", name, info.DataOffsets, r.dataSize)
		}
	}
	return r, nil
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}

// Metadata returns the __metadata__ map, which may be nil.
func (r *Reader) Metadata() map[string]string {
	return r.header.Metadata
}

// Names returns the tensor names in sorted order.
func (r *Reader) Names() []string {
	names := make([]string, 0, len(r.header.Tensors))
	for name := range r.header.Tensors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Info returns the header entry for name.
func (r *Reader) Info(name string) (Info, error) {
	info, ok := r.header.Tensors[name]
	if !ok {
		return Info{}, errors.Wrap(ErrNotFound, name)
	}
	return info, nil
}

func (r *Reader) raw(name string) (Info, []byte, error) {
	info, err := r.Info(name)
	if err != nil {
		return Info{}, nil, err
	}
	size, err := elementSize(info.DType)
	if err != nil {
		return Info{}, nil, err
	}
	shape := tensor.Shape(info.Shape)
	if int64(shape.NumElements()*size) != info.Size() {
		return Info{}, nil, errors.Errorf("tensor %s: %d bytes for shape %v of %s", name, info.Size(), info.Shape, info.DType)
	}

	if _, err := r.file.Seek(r.dataOffset+info.DataOffsets[0], io.SeekStart); err != nil {
		return Info{}, nil, errors.Wrap(err, "seek")
	}
	data := make([]byte, info.Size())
	if _, err := io.ReadFull(r.file, data); err != nil {
		return Info{}, nil, errors.Wrapf(err, "reading tensor %s", name)
	}
	return info, data, nil
}

// Tensor loads a floating-point tensor, keeping its storage type.
func (r *Reader) Tensor(name string) (*tensor.Tensor, error) {
	info, data, err := r.raw(name)
	if err != nil {
		return nil, err
	}
	dtype, err := toDataType(info.DType)
	if err != nil {
		return nil, errors.WithMessage(err, name)
	}

	var values []float32
	switch info.DType {
	case F32:
		values = make([]float32, len(data)/4)
		err = binary.Read(bytes.NewReader(data), binary.LittleEndian, values)
	case F16:
		u16s := make([]uint16, len(data)/2)
		err = binary.Read(bytes.NewReader(data), binary.LittleEndian, u16s)
		values = make([]float32, len(u16s))
		for i := range u16s {
			values[i] = float16.Frombits(u16s[i]).Float32()
		}
	case BF16:
		values = bfloat16.DecodeFloat32(data)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "decoding tensor %s", name)
	}

	shape := tensor.Shape(info.Shape)
	if len(shape) == 0 {
		shape = tensor.Shape{1}
	}
	return tensor.FromSlice(values, shape, dtype)
}

// Int32s loads an I32 or I64 tensor as a flat id slice.
func (r *Reader) Int32s(name string) ([]int32, error) {
	info, data, err := r.raw(name)
	if err != nil {
		return nil, err
	}

	switch info.DType {
	case I32:
		ids := make([]int32, len(data)/4)
		if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, ids); err != nil {
			return nil, errors.Wrapf(err, "decoding tensor %s", name)
		}
		return ids, nil
	case I64:
		wide := make([]int64, len(data)/8)
		if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, wide); err != nil {
			return nil, errors.Wrapf(err, "decoding tensor %s", name)
		}
		ids := make([]int32, len(wide))
		for i, v := range wide {
			ids[i] = int32(v) //nolint:gosec // G115: token ids fit in int32.
		}
		return ids, nil
	default:
		return nil, errors.Wrapf(ErrUnsupportedDType, "tensor %s is %s, want I32 or I64", name, info.DType)
	}
}
