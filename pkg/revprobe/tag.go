package revprobe

import (
	"fmt"
	"strconv"
)

// TagWidth is the number of zero padded digits in a revision tag.
const TagWidth = 7

// Tag renders a revision as its canonical tag, e.g. 123 -> "v0000123".
// Revisions wider than TagWidth digits are written at their natural width.
func Tag(rev int64) string {
	return fmt.Sprintf("v%0*d", TagWidth, rev)
}

// ParseTag returns the revision encoded in name. It only accepts canonical
// tags, so "v123" and "v00000123" are rejected.
func ParseTag(name string) (int64, bool) {
	if len(name) < TagWidth+1 || name[0] != 'v' {
		return 0, false
	}
	digits := name[1:]
	for i := 0; i < len(digits); i++ {
		if digits[i] < '0' || digits[i] > '9' {
			return 0, false
		}
	}
	rev, err := strconv.ParseInt(digits, 10, 64)
	if err != nil || Tag(rev) != name {
		return 0, false
	}
	return rev, true
}
