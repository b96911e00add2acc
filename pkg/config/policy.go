package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/noah-isme/workshop-scheduler/internal/optimizer/policy"
)

// Spec returns the policy described by the env values.
func (p PolicyConfig) Spec() policy.Spec {
	return policy.Spec{
		MaxChoices:   p.MaxChoices,
		MinOccupancy: p.MinOccupancy,
		MaxOccupancy: p.MaxOccupancy,
		Slots:        policy.Range(p.FirstSlot, p.LastSlot),
	}
}

// Build returns the effective policy, reading File when it is set.
func (p PolicyConfig) Build() (policy.Policy, error) {
	if p.File == "" {
		return policy.New(p.Spec())
	}
	return LoadPolicyFile(p.File, p.Spec())
}

// LoadPolicyFile reads a YAML policy. Fields the document omits keep the
// values of base.
func LoadPolicyFile(path string, base policy.Spec) (policy.Policy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return policy.Policy{}, fmt.Errorf("read policy file: %w", err)
	}
	return ParsePolicy(raw, base)
}

// ParsePolicy decodes a YAML policy document over base.
func ParsePolicy(raw []byte, base policy.Spec) (policy.Policy, error) {
	spec := base
	if err := yaml.Unmarshal(raw, &spec); err != nil {
		return policy.Policy{}, fmt.Errorf("decode policy file: %w", err)
	}
	return policy.New(spec)
}
