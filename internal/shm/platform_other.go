//go:build !(linux && (amd64 || arm64))

package shm

// Segment is unavailable on this platform.
type Segment struct {
	name string
}

// NewSegment returns a segment whose operations all fail.
func NewSegment(name string, _ Access) *Segment { return &Segment{name: name} }

func (s *Segment) Name() string            { return s.name }
func (s *Segment) Create(int) (int, error) { return 0, ErrUnsupportedPlatform }
func (s *Segment) Attach() error           { return ErrUnsupportedPlatform }
func (s *Segment) Detach() error           { return ErrNotAttached }
func (s *Segment) Attached() bool          { return false }
func (s *Segment) Bytes() []byte           { return nil }
func (s *Segment) Size() int               { return 0 }

// StatSegment always fails on this platform.
func StatSegment(string) (SegmentInfo, error) { return SegmentInfo{}, ErrUnsupportedPlatform }

// RemoveSegment always fails on this platform.
func RemoveSegment(string) error { return ErrUnsupportedPlatform }

// Semaphore is unavailable on this platform.
type Semaphore struct{}

// OpenSemaphore always fails on this platform.
func OpenSemaphore(string, int, bool) (*Semaphore, error) { return nil, ErrUnsupportedPlatform }

func (s *Semaphore) Name() string              { return "" }
func (s *Semaphore) Acquire() error            { return ErrUnsupportedPlatform }
func (s *Semaphore) TryAcquire() (bool, error) { return false, ErrUnsupportedPlatform }
func (s *Semaphore) Release() error            { return ErrUnsupportedPlatform }
func (s *Semaphore) Value() (int, error)       { return 0, ErrUnsupportedPlatform }

// SemaphoreValue always fails on this platform.
func SemaphoreValue(string) (int, bool, error) { return 0, false, ErrUnsupportedPlatform }

// RemoveSemaphore always fails on this platform.
func RemoveSemaphore(string) error { return ErrUnsupportedPlatform }
