package scanner

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// A group of keywords sharing one description.
type KeywordGroup struct {
	Description string   `yaml:"description" json:"description"`
	Keywords    []string `yaml:"keywords" json:"keywords"`
}

// Rules holds the keyword tables in declaration order. Findings are
// reported in this order.
type Rules struct {
	AutoExec   []*KeywordGroup `yaml:"autoexec" json:"autoexec"`
	Suspicious []*KeywordGroup `yaml:"suspicious" json:"suspicious"`
}

func (self *Rules) Copy() *Rules {
	result := &Rules{}
	result.AutoExec = copyGroups(self.AutoExec)
	result.Suspicious = copyGroups(self.Suspicious)
	return result
}

func copyGroups(groups []*KeywordGroup) []*KeywordGroup {
	result := make([]*KeywordGroup, 0, len(groups))
	for _, group := range groups {
		result = append(result, &KeywordGroup{
			Description: group.Description,
			Keywords:    append([]string{}, group.Keywords...),
		})
	}
	return result
}

// Merge adds the groups of other. Keywords of a group whose description
// already exists are appended to it, other groups are added at the end.
func (self *Rules) Merge(other *Rules) {
	self.AutoExec = mergeGroups(self.AutoExec, other.AutoExec)
	self.Suspicious = mergeGroups(self.Suspicious, other.Suspicious)
}

func mergeGroups(groups, extra []*KeywordGroup) []*KeywordGroup {
	for _, group := range extra {
		if group == nil || len(group.Keywords) == 0 {
			continue
		}

		found := false
		for _, existing := range groups {
			if existing.Description == group.Description {
				existing.Keywords = append(existing.Keywords, group.Keywords...)
				found = true
				break
			}
		}

		if !found {
			groups = append(groups, &KeywordGroup{
				Description: group.Description,
				Keywords:    append([]string{}, group.Keywords...),
			})
		}
	}
	return groups
}

// LoadRules parses a YAML document of extra keyword groups and merges it
// over the default tables.
//
//	suspicious:
//	  - description: May call the Windows API
//	    keywords: [Declare, PtrSafe]
func LoadRules(data []byte) (*Rules, error) {
	extra := &Rules{}
	err := yaml.Unmarshal(data, extra)
	if err != nil {
		return nil, errors.Wrap(err, "parsing rules")
	}

	for _, groups := range [][]*KeywordGroup{extra.AutoExec, extra.Suspicious} {
		for _, group := range groups {
			if group == nil {
				continue
			}
			if group.Description == "" {
				return nil, errors.New("rule group without a description")
			}
		}
	}

	result := DefaultRules()
	result.Merge(extra)
	return result, nil
}

func LoadRulesFile(filename string) (*Rules, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return LoadRules(data)
}
