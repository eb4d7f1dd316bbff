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
	"sync"

	"goarrg.com/rhi/mex/macro"
)

/*
macroCache memoizes assembled macro blobs keyed by device class and slot,
so devices sharing a registry assemble each macro once. Entries are never
invalidated; Register replaces builders before any device is created.
*/
type macroCache struct {
	mutex sync.Mutex
	cache map[string][]byte
}

func macroCacheKey(class macro.Class, id MacroID) string {
	return fmt.Sprintf("%s/%s", class, id)
}

func (c *macroCache) MarshalJSON() ([]byte, error) {
	buff := bytes.Buffer{}
	buff.WriteString("{")

	c.mutex.Lock()
	{
		err := mapRunFuncSorted(c.cache, func(k string, v []byte) error {
			buff.WriteString(fmt.Sprintf("%q: %d,", k, len(v)))
			return nil
		})
		if err == nil {
			buff.Truncate(buff.Len() - 1)
		}
	}
	c.mutex.Unlock()

	buff.WriteString("}")
	return buff.Bytes(), nil
}

func (c *macroCache) createOrRetrieveBlob(r *Registry, info macro.DeviceInfo, id MacroID) ([]byte, error) {
	key := macroCacheKey(info.Class, id)

	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.cache == nil {
		c.cache = map[string][]byte{}
	}
	if blob, ok := c.cache[key]; ok {
		return blob, nil
	}

	blob, err := r.Build(info, id)
	if err != nil {
		return nil, err
	}
	c.cache[key] = blob
	return blob, nil
}
