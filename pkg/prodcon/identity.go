package prodcon

import (
	"bufio"
	"os"
	"strings"
)

// Identity is a resolved channel name. Producer and consumer must resolve the
// same Identity to talk to each other.
type Identity struct {
	// Name names the shared memory segment; the semaphore names derive from it.
	Name string
	// FromFile is set when Name came from an override file.
	FromFile bool
	// ResidualLines is set when the override file had non-empty lines after
	// the first one. They are ignored.
	ResidualLines bool
}

// ResolveIdentity returns explicitID, unless overrideFile names a readable file
// whose first line is not blank, in which case that line (trimmed) wins.
// A missing or unreadable override file is not an error.
func ResolveIdentity(explicitID, overrideFile string) Identity {
	id := Identity{Name: explicitID}
	if overrideFile == "" {
		return id
	}
	f, err := os.Open(overrideFile)
	if err != nil {
		return id
	}
	defer f.Close() //nolint:errcheck // read-only

	sc := bufio.NewScanner(f)
	if !sc.Scan() {
		return id
	}
	first := strings.TrimSpace(sc.Text())
	if first == "" {
		return id
	}
	id.Name = first
	id.FromFile = true
	for sc.Scan() {
		if strings.TrimSpace(sc.Text()) != "" {
			id.ResidualLines = true
			break
		}
	}
	return id
}

func (id Identity) String() string { return id.Name }

// SegmentName names the shared memory segment.
func (id Identity) SegmentName() string { return id.Name }

// EmptySemaphoreName names the semaphore counting free slots.
func (id Identity) EmptySemaphoreName() string { return id.Name + "_sem_empty" }

// FullSemaphoreName names the semaphore counting filled slots.
func (id Identity) FullSemaphoreName() string { return id.Name + "_sem_full" }

// LockName names the semaphore guarding raw access to the segment.
func (id Identity) LockName() string { return id.Name + "_lock" }
