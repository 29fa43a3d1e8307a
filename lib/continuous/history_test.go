package continuous

import (
	"testing"
	"time"
)

// buildHistory creates a history with committed versions for the given
// transaction ids, created one second apart starting at base.
func buildHistory(base time.Time, transIDs ...uint64) *VersionHistory {
	h := newHistory(1, nil, false)
	list := make([]*Version, 0, len(transIDs))
	for i, id := range transIDs {
		list = append(list, &Version{
			seq:     uint32(i + 1),
			transID: id,
			created: base.Add(time.Duration(i) * time.Second),
			state:   StateCommitted,
			history: h,
			record:  &Note{},
		})
	}
	h.publish(list)
	return h
}

func TestGetCurrentAt(t *testing.T) {
	h := buildHistory(time.Unix(0, 0), 2, 5, 5, 9)
	v := h.Versions()

	tests := []struct {
		name    string
		transID uint64
		want    *Version
	}{
		{"BeforeFirst", 1, nil},
		{"First", 2, v[0]},
		{"BetweenVersions", 4, v[0]},
		{"SameTransaction", 5, v[2]},
		{"Latest", 9, v[3]},
		{"AfterLatest", 100, v[3]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := h.GetCurrentAt(tt.transID); got != tt.want {
				t.Errorf("GetCurrentAt(%d) = %v, want %v", tt.transID, got, tt.want)
			}
		})
	}

	if empty := newHistory(2, nil, false); empty.GetCurrentAt(10) != nil || empty.Latest() != nil {
		t.Errorf("Empty history must have no current version")
	}
}

func TestIsCurrentForTransaction(t *testing.T) {
	h := buildHistory(time.Unix(0, 0), 2, 5, 9)
	v := h.Versions()

	tests := []struct {
		name    string
		version *Version
		transID uint64
		want    bool
	}{
		{"CommittedAfterSnapshot", v[1], 4, false},
		{"SuccessorAfterSnapshot", v[0], 4, true},
		{"SuccessorVisible", v[0], 5, false},
		{"MiddleVersion", v[1], 8, true},
		{"LastVersion", v[2], 9, true},
		{"LastVersionLaterSnapshot", v[2], 50, true},
		{"Nil", nil, 50, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := h.IsCurrentForTransaction(tt.version, tt.transID); got != tt.want {
				t.Errorf("IsCurrentForTransaction(%v, %d) = %v, want %v", tt.version, tt.transID, got, tt.want)
			}
		})
	}

	other := buildHistory(time.Unix(0, 0), 2)
	if h.IsCurrentForTransaction(other.Latest(), 10) {
		t.Errorf("Version of another history must not be current")
	}
}

func TestTimeLookups(t *testing.T) {
	base := time.Unix(1000, 0)
	h := buildHistory(base, 1, 2, 3)
	v := h.Versions()

	if got := h.LatestBefore(base.Add(-time.Second)); got != nil {
		t.Errorf("LatestBefore before first version = %v, want nil", got)
	}
	if got := h.LatestBefore(base.Add(1 * time.Second)); got != v[1] {
		t.Errorf("LatestBefore exact = %v, want %v", got, v[1])
	}
	if got := h.LatestBefore(base.Add(1500 * time.Millisecond)); got != v[1] {
		t.Errorf("LatestBefore between = %v, want %v", got, v[1])
	}
	if got := h.LatestBefore(base.Add(time.Hour)); got != v[2] {
		t.Errorf("LatestBefore after last = %v, want %v", got, v[2])
	}

	if got := h.EarliestAfter(base.Add(-time.Second)); got != v[0] {
		t.Errorf("EarliestAfter before first = %v, want %v", got, v[0])
	}
	if got := h.EarliestAfter(base.Add(500 * time.Millisecond)); got != v[1] {
		t.Errorf("EarliestAfter between = %v, want %v", got, v[1])
	}
	if got := h.EarliestAfter(base.Add(2 * time.Second)); got != v[2] {
		t.Errorf("EarliestAfter exact = %v, want %v", got, v[2])
	}
	if got := h.EarliestAfter(base.Add(time.Hour)); got != nil {
		t.Errorf("EarliestAfter after last = %v, want nil", got)
	}
}

func TestVersionLookup(t *testing.T) {
	h := buildHistory(time.Unix(0, 0), 1, 2, 3, 4)
	h.publish(h.Versions()[2:]) // pruned seq 1 and 2

	if h.Version(1) != nil || h.Version(2) != nil {
		t.Errorf("Pruned versions must not be found")
	}
	if v := h.Version(3); v == nil || v.Seq() != 3 {
		t.Errorf("Version(3) = %v", v)
	}
	if h.Version(5) != nil {
		t.Errorf("Version(5) must not exist")
	}
}

func TestPrunable(t *testing.T) {
	tests := []struct {
		name      string
		transIDs  []uint64
		watermark uint64
		want      int
	}{
		{"Single", []uint64{1}, 10, 0},
		{"NothingObservableDropped", []uint64{1, 5, 8}, 4, 0},
		{"KeepCurrentAtWatermark", []uint64{1, 5, 8}, 5, 1},
		{"BetweenVersions", []uint64{1, 5, 8}, 7, 1},
		{"KeepLast", []uint64{1, 5, 8}, 8, 2},
		{"WatermarkBeyondLast", []uint64{1, 5, 8}, 100, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := buildHistory(time.Unix(0, 0), tt.transIDs...)
			if got := prunable(h.list(), tt.watermark); got != tt.want {
				t.Errorf("prunable = %d, want %d", got, tt.want)
			}
		})
	}
}
