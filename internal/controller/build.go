// Copyright 2025 Emiliano Spinella (eminwux)
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

package controller

import (
	"context"
	"errors"
	"fmt"

	"github.com/eminwux/devstack/internal/errdefs"
)

// BuildResult reports the image build of one service.
type BuildResult struct {
	Service string `json:"service"         yaml:"service"`
	Image   string `json:"image"           yaml:"image"`
	Context string `json:"context"         yaml:"context"`
	Built   bool   `json:"built"           yaml:"built"`
	Error   string `json:"error,omitempty" yaml:"error,omitempty"`
}

// Build builds the images of names from their build contexts, one after the
// other. With no names every service that has a build context is built.
// Failures do not stop the remaining builds; they are joined in the error.
func (b *Exec) Build(ctx context.Context, names ...string) ([]BuildResult, error) {
	explicit := len(names) > 0
	if !explicit {
		names = b.registry.Names()
	}

	var (
		results []BuildResult
		errs    []error
	)
	for _, name := range names {
		desc, err := b.registry.Resolve(name)
		if err != nil {
			errs = append(errs, err)
			results = append(results, BuildResult{Service: name, Error: err.Error()})
			continue
		}
		if desc.BuildContext == "" {
			if explicit {
				err = fmt.Errorf("%w: %s", errdefs.ErrNoBuildContext, desc.Name)
				errs = append(errs, err)
				results = append(results, BuildResult{Service: desc.Name, Image: desc.Image, Error: err.Error()})
			}
			continue
		}
		if err = ctx.Err(); err != nil {
			return results, err
		}

		res := BuildResult{Service: desc.Name, Image: desc.Image, Context: desc.BuildContext}
		if err = b.client.Build(ctx, desc.Image, desc.BuildContext); err != nil {
			b.logger.ErrorContext(ctx, "image build failed", "service", desc.Name, "error", err)
			res.Error = err.Error()
			errs = append(errs, err)
		} else {
			b.logger.InfoContext(ctx, "image built", "service", desc.Name, "image", desc.Image)
			res.Built = true
		}
		results = append(results, res)
	}
	return results, errors.Join(errs...)
}
