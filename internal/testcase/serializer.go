package testcase

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// compact returns a copy with default-valued metadata cleared so the
// marshaled YAML stays close to what an author would write by hand.
func compact(c TestCase) TestCase {
	if c.Source == SourceManual {
		c.Source = ""
	}
	if c.ReviewStatus == ReviewApproved {
		c.ReviewStatus = ""
	}
	if c.Tier == TierGold {
		c.Tier = ""
	}
	if c.Expected.Output == c.ExpectedOutput {
		c.Expected.Output = ""
	}
	return c
}

// Marshal renders a suite as YAML, omitting per-case defaults.
func Marshal(suite *TestSuite) ([]byte, error) {
	if suite == nil {
		return nil, fmt.Errorf("testcase: nil suite")
	}
	out := TestSuite{
		Name:        suite.Name,
		Description: suite.Description,
		Context:     suite.Context,
		Tier:        suite.Tier,
		Cases:       make([]TestCase, len(suite.Cases)),
	}
	for i, c := range suite.Cases {
		out.Cases[i] = compact(c)
	}
	data, err := yaml.Marshal(&out)
	if err != nil {
		return nil, fmt.Errorf("testcase: marshal suite %s: %w", suite.Name, err)
	}
	return data, nil
}

// SaveSuite writes a suite file, creating parent directories as needed.
func SaveSuite(path string, suite *TestSuite) error {
	data, err := Marshal(suite)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("testcase: mkdir for %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("testcase: write %s: %w", path, err)
	}
	return nil
}

// UpdateReviewStatus rewrites a suite file with new review decisions.
// Unknown ids are ignored; the number of updated cases is returned.
func UpdateReviewStatus(path string, decisions map[string]ReviewStatus) (int, error) {
	suite, err := LoadFile(path)
	if err != nil {
		return 0, err
	}
	updated := 0
	for i := range suite.Cases {
		if status, ok := decisions[suite.Cases[i].ID]; ok {
			suite.Cases[i].ReviewStatus = status
			updated++
		}
	}
	if updated == 0 {
		return 0, nil
	}
	if err := SaveSuite(path, suite); err != nil {
		return 0, err
	}
	return updated, nil
}
