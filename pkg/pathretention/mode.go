package pathretention

import (
	"encoding/json"
	"fmt"

	"github.com/paulschiretz/pgl-svnbackup/pkg/util"
)

// Mode selects how snapshot directories and archive files are counted.
type Mode string

const (
	// Independent keeps the newest N snapshot directories and, separately,
	// the newest N archive files.
	Independent Mode = "independent"
	// Revision keeps the newest N revisions, whatever form they are stored in.
	Revision Mode = "revision"
)

var modeToString = map[Mode]string{
	Independent: "independent",
	Revision:    "revision",
}

var stringToMode map[string]Mode

func init() {
	stringToMode = util.InvertMap(modeToString)
}

func (m Mode) String() string {
	if str, ok := modeToString[m]; ok {
		return str
	}
	return fmt.Sprintf("unknown_retention_mode(%s)", string(m))
}

// ParseMode parses a retention mode. An empty string means Independent.
func ParseMode(s string) (Mode, error) {
	if s == "" {
		return Independent, nil
	}
	if m, ok := stringToMode[s]; ok {
		return m, nil
	}
	return "", fmt.Errorf("invalid retention mode: %q. Must be 'independent' or 'revision'", s)
}

func (m Mode) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

func (m *Mode) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("retention mode should be a string, got %s", data)
	}
	return m.UnmarshalText([]byte(s))
}

func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Mode) UnmarshalText(text []byte) error {
	mode, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = mode
	return nil
}
