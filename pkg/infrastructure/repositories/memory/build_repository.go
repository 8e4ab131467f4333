package memory

import (
	"context"
	"fmt"

	"github.com/vsinha/buildcore/pkg/domain/entities"
	"github.com/vsinha/buildcore/pkg/domain/repositories"
)

// BuildRepository provides in-memory build order storage
type BuildRepository struct {
	store *Store
}

// Verify interface compliance
var _ repositories.BuildRepository = (*BuildRepository)(nil)

// GetBuild returns a build order by id
func (r *BuildRepository) GetBuild(ctx context.Context, id entities.BuildOrderID) (*entities.BuildOrder, error) {
	var build *entities.BuildOrder
	r.store.read(func(st *state) {
		if b, ok := st.builds[id]; ok {
			build = &b
		}
	})
	if build == nil {
		return nil, notFound("build order", string(id))
	}
	return build, nil
}

// SaveBuild adds a build order
func (r *BuildRepository) SaveBuild(ctx context.Context, build *entities.BuildOrder) error {
	return r.store.write(buildsTable, func(st *state) error {
		if _, exists := st.builds[build.ID]; exists {
			return fmt.Errorf("build order already exists: %s", build.ID)
		}
		st.builds[build.ID] = *build
		return nil
	})
}

// UpdateBuild replaces an existing build order
func (r *BuildRepository) UpdateBuild(ctx context.Context, build *entities.BuildOrder) error {
	return r.store.write(buildsTable, func(st *state) error {
		if _, ok := st.builds[build.ID]; !ok {
			return notFound("build order", string(build.ID))
		}
		st.builds[build.ID] = *build
		return nil
	})
}

// GetOutput returns a build output by id
func (r *BuildRepository) GetOutput(ctx context.Context, id entities.BuildOutputID) (*entities.BuildOutput, error) {
	var output *entities.BuildOutput
	r.store.read(func(st *state) {
		if o, ok := st.outputs[id]; ok {
			output = o.Clone()
		}
	})
	if output == nil {
		return nil, notFound("build output", string(id))
	}
	return output, nil
}

// GetOutputs returns the outputs of a build order in creation order
func (r *BuildRepository) GetOutputs(ctx context.Context, build entities.BuildOrderID) ([]*entities.BuildOutput, error) {
	var outputs []*entities.BuildOutput
	r.store.read(func(st *state) {
		for _, id := range st.outputIndexes[build] {
			outputs = append(outputs, st.outputs[id].Clone())
		}
	})
	return outputs, nil
}

// SaveOutput adds a build output
func (r *BuildRepository) SaveOutput(ctx context.Context, output *entities.BuildOutput) error {
	return r.store.write(outputsTable, func(st *state) error {
		if _, ok := st.builds[output.Build]; !ok {
			return notFound("build order", string(output.Build))
		}
		if _, exists := st.outputs[output.ID]; exists {
			return fmt.Errorf("build output already exists: %s", output.ID)
		}
		st.outputs[output.ID] = output.Clone()
		st.outputIndexes[output.Build] = append(st.outputIndexes[output.Build], output.ID)
		return nil
	})
}

// UpdateOutput replaces an existing build output
func (r *BuildRepository) UpdateOutput(ctx context.Context, output *entities.BuildOutput) error {
	return r.store.write(outputsTable, func(st *state) error {
		if _, ok := st.outputs[output.ID]; !ok {
			return notFound("build output", string(output.ID))
		}
		st.outputs[output.ID] = output.Clone()
		return nil
	})
}
