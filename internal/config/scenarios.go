package config

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

const (
	DefaultAgent = "_default"
	DefaultTopK  = 5
)

// AgentScenario is the per-agent tuning block of the scenarios document.
// Retrieve is passed through verbatim as the cloud override_config.
type AgentScenario struct {
	Retrieve         map[string]interface{}  `yaml:"retrieve"`
	MemoryTypes      []string                `yaml:"memory_types"`
	MemoryCategories []interface{}           `yaml:"memory_categories"`
	Tasks            map[string]TaskScenario `yaml:"tasks"`
}

type TaskScenario struct {
	MemoryTypes []string `yaml:"memory_types"`
}

// Scenarios is loaded once at startup and shared read-only.
type Scenarios struct {
	agents   map[string]AgentScenario
	agentIDs []string
}

func EmptyScenarios() *Scenarios {
	return &Scenarios{agents: map[string]AgentScenario{}}
}

// LoadScenarios reads the document keyed by agent id. A missing file yields
// empty scenarios; JSON documents parse because JSON is valid YAML.
func LoadScenarios(path string) (*Scenarios, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return EmptyScenarios(), nil
		}
		return nil, fmt.Errorf("read scenarios: %w", err)
	}
	return ParseScenarios(data)
}

func ParseScenarios(data []byte) (*Scenarios, error) {
	var raw map[string]yaml.Node
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse scenarios: %w", err)
	}

	s := EmptyScenarios()
	for key, node := range raw {
		switch {
		case key == "agent_ids":
			var ids []string
			if err := node.Decode(&ids); err == nil {
				s.agentIDs = ids
			}
		case key == "_comment":
		default:
			var agent AgentScenario
			if err := node.Decode(&agent); err != nil {
				return nil, fmt.Errorf("parse scenario %s: %w", key, err)
			}
			s.agents[key] = agent
		}
	}

	return s, nil
}

func (s *Scenarios) agent(agentID string) AgentScenario {
	if a, ok := s.agents[agentID]; ok {
		return a
	}
	return s.agents[DefaultAgent]
}

// RetrieveConfig returns a copy of the agent's retrieve tuning, falling back to _default.
func (s *Scenarios) RetrieveConfig(agentID string) map[string]interface{} {
	src := s.agent(agentID).Retrieve
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]interface{}, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

// TopK reads retrieve.item.top_k, defaulting to DefaultTopK.
func (s *Scenarios) TopK(agentID string) int {
	item, ok := s.agent(agentID).Retrieve["item"].(map[string]interface{})
	if !ok {
		return DefaultTopK
	}
	switch v := item["top_k"].(type) {
	case int:
		if v > 0 {
			return v
		}
	case float64:
		if v > 0 {
			return int(v)
		}
	}
	return DefaultTopK
}

// MemorizeOverride builds the memorize override_config for a task.
func (s *Scenarios) MemorizeOverride(agentID, task string) map[string]interface{} {
	a := s.agent(agentID)

	types := a.Tasks[task].MemoryTypes
	if len(types) == 0 {
		types = a.MemoryTypes
	}
	if len(types) == 0 {
		types = []string{"knowledge"}
	}

	cats := a.MemoryCategories
	if len(cats) == 0 {
		cats = s.agents[DefaultAgent].MemoryCategories
	}
	if cats == nil {
		cats = []interface{}{}
	}

	return map[string]interface{}{
		"memory_types":      types,
		"memory_categories": cats,
	}
}

func (s *Scenarios) AgentIDs() []string {
	if len(s.agentIDs) > 0 {
		return append([]string(nil), s.agentIDs...)
	}
	ids := make([]string, 0, len(s.agents))
	for id := range s.agents {
		if id == "" || id[0] == '_' {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
