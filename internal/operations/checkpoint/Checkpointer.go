package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"os"

	"TradeMate/internal/logging"
	"TradeMate/internal/models"
	"TradeMate/internal/services/policy"

	"github.com/rs/zerolog"
)

const DefaultName = "dqn"

// Store persists encoded policy states
type Store interface {
	Save(checkpoint *models.PolicyCheckpoint) error
	FindByName(name string) (*models.PolicyCheckpoint, error)
}

// Checkpointer writes the policy to a file, the database, or both
type Checkpointer struct {
	policy *policy.DQN
	store  Store
	path   string
	name   string
	logger zerolog.Logger

	// OnFailure is called whenever a save fails
	OnFailure func()
}

func New(p *policy.DQN, store Store, path, name string, logger zerolog.Logger) *Checkpointer {
	if name == "" {
		name = DefaultName
	}
	return &Checkpointer{
		policy: p,
		store:  store,
		path:   path,
		name:   name,
		logger: logging.Component(logger, "checkpoint"),
	}
}

func (c *Checkpointer) Save(ctx context.Context) error {
	// file and row are written from the same snapshot
	state := c.policy.Snapshot()
	payload, err := policy.MarshalState(state)
	if err != nil {
		c.fail(err)
		return err
	}

	var errs []error
	if c.path != "" {
		if err := policy.WriteStateFile(c.path, payload); err != nil {
			errs = append(errs, err)
		}
	}

	if c.store != nil {
		err := c.store.Save(&models.PolicyCheckpoint{
			Name:    c.name,
			Epsilon: state.Epsilon,
			Steps:   state.Optimizer.Step,
			Payload: payload,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to store checkpoint %s: %w", c.name, err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		c.fail(err)
		return err
	}

	c.logger.Info().Str("name", c.name).Str("path", c.path).Int("bytes", len(payload)).Msg("policy checkpoint saved")
	return nil
}

func (c *Checkpointer) fail(err error) {
	c.logger.Error().Err(err).Msg("policy checkpoint failed")
	if c.OnFailure != nil {
		c.OnFailure()
	}
}

// Restore loads the database checkpoint, or the file when no row exists.
// It reports false when neither exists.
func (c *Checkpointer) Restore(ctx context.Context) (bool, error) {
	if c.store != nil {
		checkpoint, err := c.store.FindByName(c.name)
		if err != nil {
			return false, fmt.Errorf("failed to load checkpoint %s: %w", c.name, err)
		}
		if checkpoint != nil {
			state, err := policy.UnmarshalState(checkpoint.Payload)
			if err != nil {
				return false, err
			}
			if err := c.policy.Restore(state); err != nil {
				return false, err
			}
			c.logger.Info().Str("name", c.name).Int("steps", checkpoint.Steps).Msg("policy restored from database")
			return true, nil
		}
	}

	if c.path != "" {
		if _, err := os.Stat(c.path); errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		if err := c.policy.Load(c.path); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}
