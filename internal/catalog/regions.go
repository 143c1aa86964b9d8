package catalog

import (
	"sort"
	"strings"
)

// Regions maps the two-digit KOATUU prefix of a Ukrainian cadastral number
// to the oblast it belongs to.
var Regions = map[string]string{
	"05": "Вінницька область",
	"07": "Волинська область",
	"12": "Дніпропетровська область",
	"14": "Донецька область",
	"18": "Житомирська область",
	"21": "Закарпатська область",
	"23": "Запорізька область",
	"26": "Івано-Франківська область",
	"32": "Київська область",
	"35": "Кіровоградська область",
	"44": "Луганська область",
	"46": "Львівська область",
	"48": "Миколаївська область",
	"51": "Одеська область",
	"53": "Полтавська область",
	"56": "Рівненська область",
	"59": "Сумська область",
	"61": "Тернопільська область",
	"63": "Харківська область",
	"65": "Херсонська область",
	"68": "Хмельницька область",
	"71": "Черкаська область",
	"73": "Чернівецька область",
	"74": "Чернігівська область",
	"80": "м. Київ",
	"85": "АР Крим",
}

// RegionCode returns the two-digit prefix of a cadastral number, or "" when
// the number does not start with two digits.
func RegionCode(cadastral string) string {
	c := strings.TrimSpace(cadastral)
	if len(c) < 2 || c[0] < '0' || c[0] > '9' || c[1] < '0' || c[1] > '9' {
		return ""
	}
	return c[:2]
}

// RegionName returns the oblast name for code, or the code itself.
func RegionName(code string) string {
	if name, ok := Regions[code]; ok {
		return name
	}
	return code
}

// LoadedRegions lists the regions present in the full set, ordered by code.
func (c *Catalog) LoadedRegions() []string {
	c.mu.RLock()
	seen := make(map[string]struct{})
	for _, p := range c.parcels {
		if code := RegionCode(p.CadastralNumber); code != "" {
			seen[code] = struct{}{}
		}
	}
	c.mu.RUnlock()

	codes := make([]string, 0, len(seen))
	for code := range seen {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	names := make([]string, len(codes))
	for i, code := range codes {
		names[i] = RegionName(code)
	}
	return names
}
