/*
Copyright 2026 The goARRG Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package mex

import (
	"bytes"
	"fmt"
)

// DescriptorTableConfig bounds one descriptor table: it starts at Min
// entries and doubles on demand up to Max.
type DescriptorTableConfig struct {
	Min int
	Max int
}

type Config struct {
	// PushBufferSize is the byte size of each push buffer chunk.
	PushBufferSize int

	ImageDescriptors   DescriptorTableConfig
	SamplerDescriptors DescriptorTableConfig
}

func (c *Config) MarshalJSON() ([]byte, error) {
	buff := bytes.Buffer{}
	buff.WriteString("{")

	buff.WriteString(fmt.Sprintf("\"PushBufferSize\": %d,", c.PushBufferSize))
	buff.WriteString(fmt.Sprintf("\"ImageDescriptors\": %s,", jsonString(c.ImageDescriptors)))
	buff.WriteString(fmt.Sprintf("\"SamplerDescriptors\": %s", jsonString(c.SamplerDescriptors)))

	buff.WriteString("}")
	return buff.Bytes(), nil
}

func (t *DescriptorTableConfig) validate(name string, defMin, defMax int) {
	if t.Min < 0 || t.Max < 0 {
		abort("Config.%s must not be negative", name)
	}
	if t.Min == 0 {
		t.Min = defMin
	}
	if t.Max == 0 {
		t.Max = defMax
	}
	if t.Max < t.Min {
		abort("Config.%s.Max must be >= Config.%s.Min", name, name)
	}
}

func (c *Config) validate() {
	if c.PushBufferSize < 0 {
		abort("Config.PushBufferSize must not be negative")
	}
	if c.PushBufferSize == 0 {
		c.PushBufferSize = 64 << 10
	}
	if c.PushBufferSize%4 != 0 {
		abort("Config.PushBufferSize must be word aligned")
	}
	c.ImageDescriptors.validate("ImageDescriptors", 1024, 1<<20)
	c.SamplerDescriptors.validate("SamplerDescriptors", 256, 4096)
}
