/*
 * Copyright 2018 The CovenantSQL Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package conf

import (
	"io/ioutil"

	"github.com/pkg/errors"
	yaml "gopkg.in/yaml.v2"

	"github.com/Jvryan92/epochcore-RAS-sub008/utils/log"
)

// Agent is a market participant bidding on capabilities.
type Agent struct {
	Name   string  `yaml:"name"`
	Weight float64 `yaml:"weight"`
}

// Plan is a SaaS subscription tier.
type Plan struct {
	Name   string  `yaml:"name"`
	Quota  float64 `yaml:"quota"`
	PPC    float64 `yaml:"ppc"`
	Weight float64 `yaml:"weight"`
}

// Profile holds the simulation tables of all domains.
type Profile struct {
	Agents       []Agent  `yaml:"agents"`
	Capabilities []string `yaml:"capabilities"`
	Plans        []Plan   `yaml:"plans"`
	Triggers     []string `yaml:"triggers"`
}

// DefaultProfile returns the built-in simulation tables.
func DefaultProfile() *Profile {
	return &Profile{
		Agents: []Agent{
			{Name: "atlas", Weight: 1.0},
			{Name: "beacon", Weight: 1.2},
			{Name: "cipher", Weight: 0.9},
			{Name: "delta", Weight: 1.1},
		},
		Capabilities: []string{"discover", "plan", "execute", "review", "publish"},
		Plans: []Plan{
			{Name: "starter", Quota: 1000, PPC: 0.01, Weight: 0.5},
			{Name: "pro", Quota: 5000, PPC: 0.008, Weight: 0.35},
			{Name: "enterprise", Quota: 20000, PPC: 0.006, Weight: 0.15},
		},
		Triggers: []string{
			"mesh.sync", "mesh.rebalance", "credit.mint", "credit.settle", "agent.welcome",
		},
	}
}

// LoadProfile reads a yaml profile. Tables missing from the file keep their
// built-in values.
func LoadProfile(path string) (p *Profile, err error) {
	p = DefaultProfile()
	if path == "" {
		return
	}
	raw, err := ioutil.ReadFile(path)
	if err != nil {
		log.WithError(err).WithField("path", path).Error("read profile failed")
		return nil, errors.Wrapf(ErrInvalidConfig, "read profile: %v", err)
	}
	var f Profile
	if err = yaml.Unmarshal(raw, &f); err != nil {
		log.WithError(err).WithField("path", path).Error("unmarshal profile failed")
		return nil, errors.Wrapf(ErrInvalidConfig, "unmarshal profile: %v", err)
	}
	if len(f.Agents) > 0 {
		p.Agents = f.Agents
	}
	if len(f.Capabilities) > 0 {
		p.Capabilities = f.Capabilities
	}
	if len(f.Plans) > 0 {
		p.Plans = f.Plans
	}
	if len(f.Triggers) > 0 {
		p.Triggers = f.Triggers
	}
	if err = p.Validate(); err != nil {
		return nil, err
	}
	return
}

// Validate rejects tables the simulation cannot draw from.
func (p *Profile) Validate() error {
	for _, a := range p.Agents {
		if a.Name == "" || a.Weight <= 0 {
			return errors.Wrapf(ErrInvalidConfig, "agent %q needs a positive weight", a.Name)
		}
	}
	var total float64
	for _, pl := range p.Plans {
		if pl.Name == "" || pl.Quota <= 0 || pl.PPC <= 0 || pl.Weight < 0 {
			return errors.Wrapf(ErrInvalidConfig, "plan %q is out of range", pl.Name)
		}
		total += pl.Weight
	}
	if len(p.Plans) > 0 && total <= 0 {
		return errors.Wrap(ErrInvalidConfig, "plan weights sum to zero")
	}
	for _, t := range p.Triggers {
		if t == "" {
			return errors.Wrap(ErrInvalidConfig, "empty trigger name")
		}
	}
	return nil
}
