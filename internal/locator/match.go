package locator

import (
	"strconv"
	"strings"
)

// PID identifies a running operating-system process.
type PID int

// Filter is the case-insensitive substring used to select listing lines. The
// zero Filter is unset and matches nothing.
type Filter struct {
	text string
	set  bool
}

// NewFilter constructs a filter for the provided substring.
func NewFilter(text string) Filter {
	return Filter{text: strings.ToLower(text), set: true}
}

// FilterFromArgs uses the last positional argument as the filter. With no
// arguments the returned filter is unset.
func FilterFromArgs(args []string) Filter {
	if len(args) == 0 {
		return Filter{}
	}
	return NewFilter(args[len(args)-1])
}

// IsSet reports whether the filter was supplied.
func (f Filter) IsSet() bool {
	return f.set
}

// String returns the lowercased filter text.
func (f Filter) String() string {
	return f.text
}

// Matches reports whether line contains the filter, ignoring case.
func (f Filter) Matches(line string) bool {
	if !f.set {
		return false
	}
	return strings.Contains(strings.ToLower(line), f.text)
}

// Match returns the PIDs taken from the first whitespace-delimited token of every
// non-blank listing line that contains filter. Lines whose first token is not a
// positive base-10 integer are skipped. Order follows the listing.
func Match(listing string, filter Filter) []PID {
	var pids []PID
	for _, line := range strings.Split(listing, "\n") {
		if !filter.Matches(line) {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		n, err := strconv.ParseInt(fields[0], 10, 0)
		if err != nil || n <= 0 {
			continue
		}
		pids = append(pids, PID(n))
	}
	return pids
}

// FormatPIDs renders pids as a comma separated list.
func FormatPIDs(pids []PID) string {
	parts := make([]string, len(pids))
	for i, pid := range pids {
		parts[i] = strconv.Itoa(int(pid))
	}
	return strings.Join(parts, ", ")
}
