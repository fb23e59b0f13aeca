package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/LerianStudio/lib-coordination/coordination/backoff"
	"github.com/LerianStudio/lib-coordination/coordination/lock"
	"github.com/spf13/cobra"
)

type lockStatusOutput struct {
	Root   string `json:"root"`
	Name   string `json:"name"`
	Key    string `json:"key"`
	Locked bool   `json:"locked"`
}

type lockEventOutput struct {
	Name     string     `json:"name"`
	Instance string     `json:"instance"`
	Event    lock.Event `json:"event"`
	State    lock.State `json:"state"`
	Lease    string     `json:"lease,omitempty"`
}

func newLockCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lock",
		Short: "Inspect and hold distributed locks",
	}

	cmd.AddCommand(newLockStatusCmd(a), newLockHoldCmd(a))

	return cmd
}

func newLockStatusCmd(a *app) *cobra.Command {
	var root, name string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Report whether any instance holds a lock",
		Args:  cobra.NoArgs,
	}

	cmd.Flags().StringVar(&root, "root", "", "key root shared by the instances")
	cmd.Flags().StringVar(&name, "name", "", "lock name")

	cmd.RunE = a.run(func(cmd *cobra.Command, _ []string) error {
		if err := requireFlag("name", name); err != nil {
			return err
		}

		locks, err := a.components.NewLockManager(root)
		if err != nil {
			return err
		}

		key := locks.Namespace().GlobalKey(name)

		locked, err := a.components.Locker.IsLocked(cmd.Context(), key)
		if err != nil {
			return err
		}

		return writeJSON(cmd.OutOrStdout(), lockStatusOutput{
			Root:   locks.Namespace().KeyRoot(),
			Name:   name,
			Key:    key,
			Locked: locked,
		})
	})

	return cmd
}

func newLockHoldCmd(a *app) *cobra.Command {
	var (
		root, name string
		hold       time.Duration
	)

	cmd := &cobra.Command{
		Use:   "hold",
		Short: "Take a lock, keep it for a while, then release it",
		Long: "Take a lock, keep it for --for, then release it. The lease is the configured " +
			"lock time to live; a hold longer than the lease loses the lock to expiry.",
		Args: cobra.NoArgs,
	}

	cmd.Flags().StringVar(&root, "root", "", "key root shared by the instances")
	cmd.Flags().StringVar(&name, "name", "", "lock name")
	cmd.Flags().DurationVar(&hold, "for", 5*time.Second, "how long to hold the lock")

	cmd.RunE = a.run(func(cmd *cobra.Command, _ []string) error {
		if err := requireFlag("name", name); err != nil {
			return err
		}

		locks, err := a.components.NewLockManager(root)
		if err != nil {
			return err
		}

		return holdLock(cmd, locks, name, hold, a.components.Config.Lock.TimeToLive)
	})

	return cmd
}

func holdLock(cmd *cobra.Command, locks *lock.Manager, name string, hold, lease time.Duration) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	lifecycle := lock.Lifecycle()
	current := lock.StateUnlocked

	emit := func(event lock.Event) error {
		next, err := lifecycle.Transition(current, event)
		if err != nil {
			return err
		}

		current = next

		ev := lockEventOutput{
			Name:     name,
			Instance: locks.Namespace().InstanceID(),
			Event:    event,
			State:    current,
		}

		if event == lock.EventAcquire {
			ev.Lease = lease.String()
		}

		return writeJSON(out, ev)
	}

	acquired, err := locks.Lock(ctx, name)
	if err != nil {
		return err
	}

	if !acquired {
		return fmt.Errorf("lock %q is held by another owner", name)
	}

	if err := emit(lock.EventAcquire); err != nil {
		return err
	}

	// An interrupt ends the hold early and still releases.
	waitErr := backoff.WaitContext(ctx, hold)
	if errors.Is(waitErr, context.Canceled) {
		waitErr = nil
	}

	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	unlockErr := locks.Unlock(releaseCtx, name)

	switch {
	case errors.Is(unlockErr, lock.ErrReleaseFailed):
		return errors.Join(emit(lock.EventExpire), waitErr)
	case unlockErr != nil:
		return errors.Join(unlockErr, waitErr)
	}

	return errors.Join(emit(lock.EventRelease), waitErr)
}
