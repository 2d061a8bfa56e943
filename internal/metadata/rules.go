package metadata

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// DefaultRules returns the built-in promotion table. Rule order fixes the
// field order in processed output. Paths address the normalized tree, so
// TIFF tag names are camelCased and CZI paths descend through the parsed
// XML document.
func DefaultRules() []Rule {
	return []Rule{
		{Field: "width", Paths: []string{
			"pages[0].tags.imageWidth",
			"metadata.imageDocument.metadata.information.image.sizeX",
		}},
		{Field: "height", Paths: []string{
			"pages[0].tags.imageLength",
			"metadata.imageDocument.metadata.information.image.sizeY",
		}},
		{Field: "bitsPerSample", Paths: []string{
			"pages[0].tags.bitsPerSample",
			"metadata.imageDocument.metadata.information.image.componentBitCount",
		}},
		{Field: "samplesPerPixel", Paths: []string{
			"pages[0].tags.samplesPerPixel",
		}},
		{Field: "pageCount", Mode: ModeCount, Paths: []string{
			"pages[*]",
		}},
		{Field: "channelCount", Mode: ModeCount, Paths: []string{
			"pages[*].structuredDescription.*.name",
			"topLevelTags.structuredOmeMetadata.oME.image.pixels.channel[*]",
			"metadata.imageDocument.metadata.information.image.dimensions.channels.channel[*]",
		}},
		{Field: "channelNames", Mode: ModeCollect, Paths: []string{
			"pages[*].structuredDescription.*.name",
			"topLevelTags.structuredOmeMetadata.oME.image.pixels.channel[*].@Name",
			"metadata.imageDocument.metadata.information.image.dimensions.channels.channel[*].@Name",
			"metadata.imageDocument.metadata.information.image.dimensions.channels.channel[*].name",
		}},
		{Field: "acquisitionDate", Paths: []string{
			"pages[0].tags.dateTime",
			"topLevelTags.structuredOmeMetadata.oME.image.acquisitionDate",
			"metadata.imageDocument.metadata.information.image.acquisitionDateAndTime",
		}},
		{Field: "software", Paths: []string{
			"pages[0].tags.software",
			"metadata.imageDocument.metadata.information.application.name",
		}},
		{Field: "instrument", Paths: []string{
			"pages[0].tags.model",
			"metadata.imageDocument.metadata.information.instrument.microscopes.microscope.@Name",
		}},
		{Field: "objective", Paths: []string{
			"pages[0].structuredDescription.*.objective",
			"metadata.imageDocument.metadata.information.instrument.objectives.objective.@Name",
		}},
		{Field: "exposureTimes", Mode: ModeCollect, Paths: []string{
			"pages[*].structuredDescription.*.exposureTime",
			"metadata.imageDocument.metadata.information.image.dimensions.channels.channel[*].exposureTime",
		}},
		{Field: "xResolution", Paths: []string{"pages[0].tags.xResolution"}},
		{Field: "yResolution", Paths: []string{"pages[0].tags.yResolution"}},
		{Field: "resolutionUnit", Paths: []string{"pages[0].tags.resolutionUnit"}},
		{Field: "compression", Paths: []string{"pages[0].tags.compression"}},
		{Field: "photometricInterpretation", Paths: []string{
			"pages[0].tags.photometricInterpretation",
		}},
		{Field: "sampleFormat", Paths: []string{"pages[0].tags.sampleFormat"}},
		{Field: "pixelSizeX", Paths: []string{
			"metadata.imageDocument.metadata.scaling.items.distance[0].value",
		}},
		{Field: "pixelSizeY", Paths: []string{
			"metadata.imageDocument.metadata.scaling.items.distance[1].value",
		}},
	}
}

// rulesFile is the on-disk shape of a promotion rules file.
type rulesFile struct {
	Promote []Rule `yaml:"promote"`
}

// LoadRules reads promotion rules from a YAML file and validates them.
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "metadata: read rules file %s", path)
	}
	var f rulesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrapf(err, "metadata: parse rules file %s", path)
	}
	if err := ValidateRules(f.Promote); err != nil {
		return nil, eris.Wrapf(err, "metadata: rules file %s", path)
	}
	return f.Promote, nil
}

// ValidateRules rejects rules with no field, no paths, unparseable patterns,
// or an unknown mode.
func ValidateRules(rules []Rule) error {
	for i, rule := range rules {
		if rule.Field == "" {
			return eris.Errorf("rule %d: field is required", i)
		}
		if len(rule.Paths) == 0 {
			return eris.Errorf("rule %d (%s): at least one path is required", i, rule.Field)
		}
		switch rule.Mode {
		case "", ModeFirst, ModeCollect, ModeCount:
		default:
			return eris.Errorf("rule %d (%s): unknown mode %q", i, rule.Field, rule.Mode)
		}
		for _, pattern := range rule.Paths {
			if _, err := parsePath(pattern, true); err != nil {
				return eris.Wrapf(err, "rule %d (%s)", i, rule.Field)
			}
		}
	}
	return nil
}

// MergeRules overlays extra onto base: an extra rule replaces the base rule
// with the same field in place, otherwise it is appended.
func MergeRules(base, extra []Rule) []Rule {
	merged := append([]Rule(nil), base...)
	index := make(map[string]int, len(merged))
	for i, rule := range merged {
		index[rule.Field] = i
	}
	for _, rule := range extra {
		if i, ok := index[rule.Field]; ok {
			merged[i] = rule
			continue
		}
		index[rule.Field] = len(merged)
		merged = append(merged, rule)
	}
	return merged
}
