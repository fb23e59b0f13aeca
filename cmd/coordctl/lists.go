package main

import (
	"encoding/json"

	"github.com/LerianStudio/lib-coordination/coordination/config"
	"github.com/LerianStudio/lib-coordination/coordination/keyspace"
	"github.com/LerianStudio/lib-coordination/coordination/list"
	"github.com/spf13/cobra"
)

type listsOutput struct {
	Root  string            `json:"root"`
	Key   string            `json:"key"`
	Items []json.RawMessage `json:"items"`
}

type instanceListsOutput struct {
	Root     string                       `json:"root"`
	Instance string                       `json:"instance"`
	Lists    map[string][]json.RawMessage `json:"lists"`
}

func newListsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lists",
		Short: "Read distributed lists",
	}

	cmd.AddCommand(newListsAllCmd(a), newListsInstanceCmd(a))

	return cmd
}

func newListsAllCmd(a *app) *cobra.Command {
	var root, key string

	cmd := &cobra.Command{
		Use:   "all",
		Short: "Print the union of every instance's copy of a list",
		Args:  cobra.NoArgs,
	}

	cmd.Flags().StringVar(&root, "root", "", "key root shared by the instances")
	cmd.Flags().StringVar(&key, "key", "", "logical list key")

	cmd.RunE = a.run(func(cmd *cobra.Command, _ []string) error {
		if err := requireFlag("key", key); err != nil {
			return err
		}

		lists, err := config.NewListManager[json.RawMessage](a.components, root)
		if err != nil {
			return err
		}

		items, err := lists.FindListForAllInstances(cmd.Context(), key)
		if err != nil {
			return err
		}

		if items == nil {
			items = []json.RawMessage{}
		}

		return writeJSON(cmd.OutOrStdout(), listsOutput{
			Root:  lists.Namespace().KeyRoot(),
			Key:   key,
			Items: items,
		})
	})

	return cmd
}

func newListsInstanceCmd(a *app) *cobra.Command {
	var root, instance string

	cmd := &cobra.Command{
		Use:   "instance",
		Short: "Print every list saved by one instance, keyed by store key",
		Args:  cobra.NoArgs,
	}

	cmd.Flags().StringVar(&root, "root", "", "key root shared by the instances")
	cmd.Flags().StringVar(&instance, "instance", "", "instance id that saved the lists")

	cmd.RunE = a.run(func(cmd *cobra.Command, _ []string) error {
		if err := requireFlag("instance", instance); err != nil {
			return err
		}

		if root == "" {
			root = a.components.Config.List.KeyRoot
		}

		ns, err := keyspace.NewWithInstance(root, instance)
		if err != nil {
			return err
		}

		lists, err := list.NewManager[json.RawMessage](ns, a.components.Store, a.components.Config.List.TimeToLive,
			list.WithLogger[json.RawMessage](a.components.Logger))
		if err != nil {
			return err
		}

		all, err := lists.FindAllLists(cmd.Context())
		if err != nil {
			return err
		}

		return writeJSON(cmd.OutOrStdout(), instanceListsOutput{
			Root:     root,
			Instance: instance,
			Lists:    all,
		})
	})

	return cmd
}
