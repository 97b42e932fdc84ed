package player

import "context"

// FileInfo describes one file table entry.
type FileInfo struct {
	Name  string `json:"name"`
	Size  uint32 `json:"size"`
	Start uint16 `json:"start"`
}

// Stats summarises block usage in the current filesystem snapshot.
type Stats struct {
	Free  int    `json:"free"`
	Used  int    `json:"used"`
	Bad   int    `json:"bad"`
	SeqNo uint32 `json:"seqno"`
}

// Filesystem is the on-device filesystem collaborator. Its cursor (the
// current snapshot and where it lives) is owned by the value.
//
// FileBlocks and ReadFile report an absent file with ok == false.
type Filesystem interface {
	Load(ctx context.Context) error
	ListFiles() ([]FileInfo, error)
	FileBlocks(name string) (blocks []uint16, ok bool, err error)
	Dump() ([]byte, error)
	ReadFile(ctx context.Context, name string) (data []byte, ok bool, err error)
	WriteFile(ctx context.Context, name string, data []byte) error
	DeleteFile(ctx context.Context, name string) error
	Stats() (Stats, error)
}
