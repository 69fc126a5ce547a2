package inotify

import (
	"fmt"
	"strings"
)

// Flag is a bit set of raw notification flags. Values match the kernel's
// inotify ABI so Linux masks can be converted without translation.
type Flag uint32

const (
	Access        Flag = 0x00000001
	Modify        Flag = 0x00000002
	Attrib        Flag = 0x00000004
	CloseWrite    Flag = 0x00000008
	CloseNowrite  Flag = 0x00000010
	Open          Flag = 0x00000020
	MovedFrom     Flag = 0x00000040
	MovedTo       Flag = 0x00000080
	Create        Flag = 0x00000100
	Delete        Flag = 0x00000200
	DeleteSelf    Flag = 0x00000400
	MoveSelf      Flag = 0x00000800
	Unmount       Flag = 0x00002000
	QueueOverflow Flag = 0x00004000
	Ignored       Flag = 0x00008000
	IsDir         Flag = 0x40000000
)

// AllEvents is the mask registered for every watch.
const AllEvents = Access | Modify | Attrib | CloseWrite | CloseNowrite | Open |
	MovedFrom | MovedTo | Create | Delete | DeleteSelf | MoveSelf

var flagNames = []struct {
	flag Flag
	name string
}{
	{Access, "ACCESS"},
	{Modify, "MODIFY"},
	{Attrib, "ATTRIB"},
	{CloseWrite, "CLOSE_WRITE"},
	{CloseNowrite, "CLOSE_NOWRITE"},
	{Open, "OPEN"},
	{MovedFrom, "MOVED_FROM"},
	{MovedTo, "MOVED_TO"},
	{Create, "CREATE"},
	{Delete, "DELETE"},
	{DeleteSelf, "DELETE_SELF"},
	{MoveSelf, "MOVE_SELF"},
	{Unmount, "UNMOUNT"},
	{QueueOverflow, "Q_OVERFLOW"},
	{Ignored, "IGNORED"},
	{IsDir, "ISDIR"},
}

// Has reports whether every bit of other is set in f.
func (f Flag) Has(other Flag) bool {
	return other != 0 && f&other == other
}

// String renders the flag set as pipe-separated kernel names, e.g. "CREATE|ISDIR".
func (f Flag) String() string {
	if f == 0 {
		return "0"
	}
	var parts []string
	rest := f
	for _, fn := range flagNames {
		if f&fn.flag != 0 {
			parts = append(parts, fn.name)
			rest &^= fn.flag
		}
	}
	if rest != 0 {
		parts = append(parts, fmt.Sprintf("0x%x", uint32(rest)))
	}
	return strings.Join(parts, "|")
}

// Record is one raw notification drained from a Source.
type Record struct {
	// Descriptor identifies the watch the record belongs to. It is -1 for
	// queue overflow records.
	Descriptor int
	// Mask holds the notification flags.
	Mask Flag
	// Cookie correlates the MovedFrom/MovedTo halves of a rename. Zero otherwise.
	Cookie uint32
	// Name is the child entry name for records reported on a directory watch,
	// empty when the record concerns the watched path itself.
	Name string
}

func (r Record) String() string {
	return fmt.Sprintf("Record(wd=%d mask=%s cookie=%d name=%q)", r.Descriptor, r.Mask, r.Cookie, r.Name)
}
