package graph

import "strings"

// AcronymAliases maps domain acronyms to their long forms. Entity name
// normalization folds both spellings to the same graph key, and query
// expansion appends the long form for semantic recall.
var AcronymAliases = map[string]string{
	"UAV":    "Unmanned Aerial Vehicle",
	"IMU":    "Inertial Measurement Unit",
	"GPS":    "Global Positioning System",
	"INS":    "Inertial Navigation System",
	"GNSS":   "Global Navigation Satellite System",
	"RADAR":  "Radio Detection and Ranging",
	"LIDAR":  "Light Detection and Ranging",
	"EO":     "Electro-Optical",
	"IR":     "Infrared",
	"RF":     "Radio Frequency",
	"C2":     "Command and Control",
	"ISR":    "Intelligence Surveillance Reconnaissance",
	"SATCOM": "Satellite Communications",
	"MTBF":   "Mean Time Between Failures",
	"SWaP":   "Size Weight and Power",
}

var lowerAliases = func() map[string]string {
	m := make(map[string]string, len(AcronymAliases))
	for acronym, expansion := range AcronymAliases {
		m[strings.ToLower(acronym)] = strings.ToLower(expansion)
	}
	return m
}()

// NormalizeEntityName folds an entity name to its graph key: lowercase,
// collapsed whitespace, known acronym tokens replaced by their long
// forms so "GPS" and "Global Positioning System" share one node.
func NormalizeEntityName(name string) string {
	fields := strings.Fields(strings.ToLower(name))
	out := make([]string, 0, len(fields))
	for _, field := range fields {
		if expansion, ok := lowerAliases[field]; ok {
			out = append(out, expansion)
			continue
		}
		out = append(out, field)
	}
	return strings.Join(out, " ")
}
