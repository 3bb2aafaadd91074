// Wire types for the GoLanShare file protocol
// The three message types the file layer exchanges, with their registered
// tags and field-order codecs, plus the FileMetadata record they embed. Fields serialize in declared order using the
// primitive encodings from the objects package.
package fileshare

import (
	"github.com/AnshSinghSonkhia/GoLanShare/objects"
)

// Wire-visible type tags.
const (
	TagFileSendMetadata = "FileSendMetadata"
	TagFileReqAck       = "FileReqAck"
	TagFilePartObj      = "FilePartObj"
)

// RegisterFileTypes binds the file-protocol decoders into reg. Called once
// at file-layer construction.
func RegisterFileTypes(reg *objects.Registry) {
	reg.Register(TagFileSendMetadata, decodeFileSendMetadata)
	reg.Register(TagFileReqAck, decodeFileReqAck)
	reg.Register(TagFilePartObj, decodeFilePartObj)
}

// FileMetadata describes one file in a transfer request.
// Wire order: file_name, file_path, file_size.
type FileMetadata struct {
	FileName string // Base name, also the name at the receiver
	FilePath string // Path at the sender, informational for the receiver
	FileSize uint64 // Exact size in bytes
}

func (m FileMetadata) marshalTo(w *objects.Writer) error {
	if err := w.WriteString(m.FileName); err != nil {
		return err
	}
	if err := w.WriteString(m.FilePath); err != nil {
		return err
	}
	w.WriteUint64(m.FileSize)
	return nil
}

func unmarshalFileMetadata(r *objects.Reader) (FileMetadata, error) {
	var m FileMetadata
	var err error

	if m.FileName, err = r.ReadString(); err != nil {
		return m, err
	}
	if m.FilePath, err = r.ReadString(); err != nil {
		return m, err
	}
	if m.FileSize, err = r.ReadUint64(); err != nil {
		return m, err
	}
	return m, nil
}

// FileSendMetadata opens a transfer: the file list, the part size the sender
// will use, and the sender's address.
// Wire order: files (u32 count + elements), buffer_size, sender_ip.
type FileSendMetadata struct {
	Files      []FileMetadata
	BufferSize uint32
	SenderIP   string
}

func (m *FileSendMetadata) TypeTag() string { return TagFileSendMetadata }

func (m *FileSendMetadata) MarshalWire() ([]byte, error) {
	w := objects.NewWriter()
	w.WriteUint32(uint32(len(m.Files)))
	for _, f := range m.Files {
		if err := f.marshalTo(w); err != nil {
			return nil, err
		}
	}
	w.WriteUint32(m.BufferSize)
	if err := w.WriteString(m.SenderIP); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

func decodeFileSendMetadata(payload []byte) (objects.Object, error) {
	r := objects.NewReader(payload)

	count, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}

	m := &FileSendMetadata{}
	for i := uint32(0); i < count; i++ {
		f, err := unmarshalFileMetadata(r)
		if err != nil {
			return nil, err
		}
		m.Files = append(m.Files, f)
	}

	if m.BufferSize, err = r.ReadUint32(); err != nil {
		return nil, err
	}
	if m.SenderIP, err = r.ReadString(); err != nil {
		return nil, err
	}
	return m, nil
}

// FileReqAck answers a FileSendMetadata.
// Wire order: accepted.
type FileReqAck struct {
	Accepted bool
}

func (a *FileReqAck) TypeTag() string { return TagFileReqAck }

func (a *FileReqAck) MarshalWire() ([]byte, error) {
	w := objects.NewWriter()
	w.WriteBool(a.Accepted)
	return w.Bytes(), nil
}

func decodeFileReqAck(payload []byte) (objects.Object, error) {
	r := objects.NewReader(payload)

	accepted, err := r.ReadBool()
	if err != nil {
		return nil, err
	}
	return &FileReqAck{Accepted: accepted}, nil
}

// FilePartObj carries one chunk of one file. Offset and IsLast both travel
// on the wire so the receiver can place bytes correctly even after a sender
// reconnects mid-record.
// Wire order: file_metadata, offset, data, is_last.
type FilePartObj struct {
	Metadata FileMetadata
	Offset   uint64
	Data     []byte
	IsLast   bool
}

func (p *FilePartObj) TypeTag() string { return TagFilePartObj }

func (p *FilePartObj) MarshalWire() ([]byte, error) {
	w := objects.NewWriter()
	if err := p.Metadata.marshalTo(w); err != nil {
		return nil, err
	}
	w.WriteUint64(p.Offset)
	if err := w.WriteBytes(p.Data); err != nil {
		return nil, err
	}
	w.WriteBool(p.IsLast)
	return w.Bytes(), nil
}

func decodeFilePartObj(payload []byte) (objects.Object, error) {
	r := objects.NewReader(payload)

	p := &FilePartObj{}
	var err error

	if p.Metadata, err = unmarshalFileMetadata(r); err != nil {
		return nil, err
	}
	if p.Offset, err = r.ReadUint64(); err != nil {
		return nil, err
	}
	if p.Data, err = r.ReadBytes(); err != nil {
		return nil, err
	}
	if p.IsLast, err = r.ReadBool(); err != nil {
		return nil, err
	}
	return p, nil
}
