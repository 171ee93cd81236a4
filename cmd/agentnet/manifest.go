// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/jllopis/agentnet/pkg/orchestrator"
)

// manifest is a declarative network: the network spec plus tasks to submit
// once it exists.
//
//	name: launch
//	max_iterations: 5
//	agents:
//	  - {name: lead, type: coordinator}
//	  - {name: writer, type: content, model: gpt-4o-mini}
//	tasks:
//	  - description: Draft the launch email
//	    priority: 3
type manifest struct {
	orchestrator.NetworkSpec `yaml:",inline"`
	Tasks                    []orchestrator.TaskSpec `yaml:"tasks,omitempty"`
}

// readManifest decodes a manifest from path, or stdin when path is "-".
// Unknown keys are rejected so typos do not silently fall back to defaults.
func readManifest(path string) (manifest, error) {
	raw, err := readInput(path)
	if err != nil {
		return manifest{}, err
	}
	var m manifest
	if err := decodeStrict(raw, &m); err != nil {
		return manifest{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return m, nil
}

// readTaskFile decodes a single TaskSpec document.
func readTaskFile(path string) (orchestrator.TaskSpec, error) {
	raw, err := readInput(path)
	if err != nil {
		return orchestrator.TaskSpec{}, err
	}
	var spec orchestrator.TaskSpec
	if err := decodeStrict(raw, &spec); err != nil {
		return orchestrator.TaskSpec{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return spec, nil
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func decodeStrict(raw []byte, out any) error {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil && err != io.EOF {
		return err
	}
	return nil
}

// toArgs converts a value to tool arguments through its JSON form.
func toArgs(v any) (map[string]interface{}, error) {
	encoded, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	args := map[string]interface{}{}
	if err := json.Unmarshal(encoded, &args); err != nil {
		return nil, err
	}
	return args, nil
}
