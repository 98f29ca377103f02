package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// ItemKind identifies the variant of a harvested item.
type ItemKind string

const (
	KindMessage     ItemKind = "message"
	KindFile        ItemKind = "file"
	KindChannel     ItemKind = "channel"
	KindFileComment ItemKind = "file_comment"
	KindUnknown     ItemKind = "unknown"
)

// HarvestedItem is a saved item pulled from the chat service. The concrete
// type is one of *MessageItem, *FileItem, *ChannelItem, *FileCommentItem or
// *UnknownItem and is fixed once the raw record has been parsed.
type HarvestedItem interface {
	Kind() ItemKind
	harvested()
}

// MessageItem is a saved chat message.
type MessageItem struct {
	AuthorID  string
	ChannelID string
	TeamID    string
	Text      string
	Timestamp string
	Permalink string
	SavedAt   time.Time
}

// FileItem is a saved file.
type FileItem struct {
	FileID    string
	Name      string
	Title     string
	OwnerID   string
	Permalink string
	SavedAt   time.Time
}

// ChannelItem is a saved channel.
type ChannelItem struct {
	ChannelID string
	Name      string
	SavedAt   time.Time
}

// FileCommentItem is a saved comment on a file.
type FileCommentItem struct {
	FileID    string
	CommentID string
	Text      string
	Timestamp string
	SavedAt   time.Time
}

// UnknownItem carries any record whose type tag is not recognised.
type UnknownItem struct {
	TypeTag string
	Raw     map[string]any
}

func (*MessageItem) Kind() ItemKind     { return KindMessage }
func (*FileItem) Kind() ItemKind        { return KindFile }
func (*ChannelItem) Kind() ItemKind     { return KindChannel }
func (*FileCommentItem) Kind() ItemKind { return KindFileComment }
func (*UnknownItem) Kind() ItemKind     { return KindUnknown }

func (*MessageItem) harvested()     {}
func (*FileItem) harvested()        {}
func (*ChannelItem) harvested()     {}
func (*FileCommentItem) harvested() {}
func (*UnknownItem) harvested()     {}

// DedupKey returns the idempotency key for an item. Unknown items are keyed
// by a digest of their raw record; an item missing its identifiers, or an
// unknown item without a raw record, returns "".
func DedupKey(item HarvestedItem) string {
	switch it := item.(type) {
	case *MessageItem:
		if it.ChannelID == "" || it.Timestamp == "" {
			return ""
		}
		return it.ChannelID + "/" + it.Timestamp
	case *FileItem:
		if it.Permalink != "" {
			return it.Permalink
		}
		if it.FileID != "" {
			return "file:" + it.FileID
		}
		return ""
	case *ChannelItem:
		if it.ChannelID == "" {
			return ""
		}
		return "channel:" + it.ChannelID
	case *FileCommentItem:
		if it.FileID == "" || it.CommentID == "" {
			return ""
		}
		return it.FileID + "/" + it.CommentID
	case *UnknownItem:
		return unknownKey(it.Raw)
	default:
		return ""
	}
}

// unknownKey hashes the JSON encoding of raw. encoding/json sorts map keys
// at every level, so equal records always produce the same key.
func unknownKey(raw map[string]any) string {
	if len(raw) == 0 {
		return ""
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return "unknown:" + hex.EncodeToString(sum[:])
}

// ItemRef identifies a saved item for removal from the saved list.
type ItemRef struct {
	ChannelID string `json:"channel,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	FileID    string `json:"file,omitempty"`
	CommentID string `json:"file_comment,omitempty"`
}

// IsZero reports whether the reference carries nothing to remove.
func (r ItemRef) IsZero() bool {
	return r == ItemRef{}
}

// RefFor returns the removal reference for an item. Unknown items and items
// missing their identifiers return a zero ItemRef.
func RefFor(item HarvestedItem) ItemRef {
	switch it := item.(type) {
	case *MessageItem:
		if it.ChannelID != "" && it.Timestamp != "" {
			return ItemRef{ChannelID: it.ChannelID, Timestamp: it.Timestamp}
		}
	case *FileItem:
		if it.FileID != "" {
			return ItemRef{FileID: it.FileID}
		}
	case *ChannelItem:
		if it.ChannelID != "" {
			return ItemRef{ChannelID: it.ChannelID}
		}
	case *FileCommentItem:
		if it.CommentID != "" {
			return ItemRef{FileID: it.FileID, CommentID: it.CommentID}
		}
	}
	return ItemRef{}
}

// SavedPage is one page returned by the saved-items listing.
type SavedPage struct {
	Items      []HarvestedItem
	NextCursor string
}

// UserInfo holds the name fields of a user record.
type UserInfo struct {
	ID          string
	DisplayName string
	RealName    string
	Handle      string
}

// ChannelInfo holds the name fields of a channel record.
type ChannelInfo struct {
	ID   string
	Name string
}
