// Package version modela la versión de los nodos del cluster.
package version

import (
	"fmt"
	"strconv"
	"strings"
)

// Version es una versión semántica major.minor.revision de un nodo.
type Version struct {
	Major    int `json:"major"`
	Minor    int `json:"minor"`
	Revision int `json:"revision"`
}

var (
	// V7_9_0 introdujo los data streams.
	V7_9_0 = Version{Major: 7, Minor: 9, Revision: 0}

	// Current es la versión que reporta este binario.
	Current = Version{Major: 7, Minor: 9, Revision: 1}
)

// Parse acepta "7.9.0" (y tolera un prefijo "v").
func Parse(s string) (Version, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "v")
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return Version{}, fmt.Errorf("illegal version format [%s]", s)
	}
	var nums [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return Version{}, fmt.Errorf("illegal version format [%s]", s)
		}
		nums[i] = n
	}
	return Version{Major: nums[0], Minor: nums[1], Revision: nums[2]}, nil
}

// MustParse es Parse para constantes de tests y configuración embebida.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

func (v Version) compare(o Version) int {
	switch {
	case v.Major != o.Major:
		return v.Major - o.Major
	case v.Minor != o.Minor:
		return v.Minor - o.Minor
	default:
		return v.Revision - o.Revision
	}
}

// Before reporta si v es estrictamente anterior a o.
func (v Version) Before(o Version) bool { return v.compare(o) < 0 }

// OnOrAfter reporta si v >= o.
func (v Version) OnOrAfter(o Version) bool { return v.compare(o) >= 0 }

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Revision)
}

// MarshalText serializa como "7.9.0" para JSON/YAML.
func (v Version) MarshalText() ([]byte, error) { return []byte(v.String()), nil }

// UnmarshalText es la inversa de MarshalText.
func (v *Version) UnmarshalText(b []byte) error {
	p, err := Parse(string(b))
	if err != nil {
		return err
	}
	*v = p
	return nil
}
