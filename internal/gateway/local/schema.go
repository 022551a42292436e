/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package local

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

const projectsSchema = `{
  "type": "array",
  "items": {
    "type": "object",
    "required": ["id", "title"],
    "properties": {
      "id": {"type": "string", "minLength": 1},
      "title": {"type": "string"},
      "user_id": {"type": "string"}
    }
  }
}`

const scenesSchema = `{
  "type": "array",
  "items": {
    "type": "object",
    "required": ["id", "project_id", "prompt_text", "x", "y", "width", "height"],
    "properties": {
      "id": {"type": "string", "minLength": 1},
      "project_id": {"type": "string", "minLength": 1},
      "prompt_text": {"type": "string"},
      "caption": {"type": "string"},
      "image_url": {"type": "string"},
      "x": {"type": "number"},
      "y": {"type": "number"},
      "width": {"type": "number", "minimum": 0},
      "height": {"type": "number", "minimum": 0}
    }
  }
}`

const connectionsSchema = `{
  "type": "array",
  "items": {
    "type": "object",
    "required": ["id", "project_id", "from_scene_id", "to_scene_id"],
    "properties": {
      "id": {"type": "string", "minLength": 1},
      "project_id": {"type": "string", "minLength": 1},
      "from_scene_id": {"type": "string", "minLength": 1},
      "to_scene_id": {"type": "string", "minLength": 1},
      "label": {"type": "string"}
    }
  }
}`

type schemaCheck struct {
	name   string
	schema *gojsonschema.Schema
}

func mustSchema(name, src string) *schemaCheck {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		panic(fmt.Sprintf("local: compile %s schema: %v", name, err))
	}
	return &schemaCheck{name: name, schema: s}
}

var (
	projectsCheck    = mustSchema("projects", projectsSchema)
	scenesCheck      = mustSchema("scenes", scenesSchema)
	connectionsCheck = mustSchema("connections", connectionsSchema)
)

func (c *schemaCheck) validate(doc []byte) error {
	res, err := c.schema.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return fmt.Errorf("%s: %w", c.name, err)
	}
	if res.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("%s schema: %s", c.name, strings.Join(msgs, "; "))
}
