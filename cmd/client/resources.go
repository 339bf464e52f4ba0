package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

func (c *cli) resourceCmd(name string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   name,
		Short: "Create, update or delete " + name,
	}
	path := "/api/" + name

	var data, file string
	readBody := func(cmd *cobra.Command) (map[string]any, error) {
		raw := []byte(data)
		if file != "" {
			var err error
			if file == "-" {
				raw, err = io.ReadAll(cmd.InOrStdin())
			} else {
				raw, err = os.ReadFile(file)
			}
			if err != nil {
				return nil, err
			}
		}
		if len(raw) == 0 {
			return nil, errors.New("--data or --file is required")
		}
		var body map[string]any
		if err := json.Unmarshal(raw, &body); err != nil {
			return nil, fmt.Errorf("body must be a JSON object: %w", err)
		}
		return body, nil
	}

	for _, m := range []struct {
		use, short, method string
	}{
		{"create", "Create one of " + name, http.MethodPost},
		{"update", "Update one of " + name, http.MethodPut},
	} {
		m := m
		sub := &cobra.Command{
			Use:   m.use,
			Short: m.short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				body, err := readBody(cmd)
				if err != nil {
					return err
				}
				return c.call(cmd.Context(), m.method, path, nil, body)
			},
		}
		sub.Flags().StringVar(&data, "data", "", "JSON body")
		sub.Flags().StringVar(&file, "file", "", "read the JSON body from a file (- for stdin)")
		cmd.AddCommand(sub)
	}

	var id, account, user string
	del := &cobra.Command{
		Use:   "delete",
		Short: "Delete one of " + name,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.call(cmd.Context(), http.MethodDelete, path, nil, map[string]string{
				"id":        id,
				"accountId": account,
				"userId":    user,
			})
		},
	}
	del.Flags().StringVar(&id, "id", "", "item id")
	del.Flags().StringVar(&account, "account", "", "account id")
	del.Flags().StringVar(&user, "user", "", "user id")
	cmd.AddCommand(del)

	return cmd
}

func (c *cli) listCmd() *cobra.Command {
	var account string
	var refresh bool
	cmd := &cobra.Command{
		Use:   "list <collection>",
		Short: "List an account collection (events, tasks, notes, tiles, documents, members, activities)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if account == "" {
				return errors.New("--account is required")
			}
			q := url.Values{}
			if refresh {
				q.Set("refresh", "true")
			}
			return c.call(cmd.Context(), http.MethodGet, "/api/accounts/"+url.PathEscape(account)+"/"+url.PathEscape(args[0]), q, nil)
		},
	}
	cmd.Flags().StringVar(&account, "account", "", "account id")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "bypass the BFF cache")
	return cmd
}

func (c *cli) searchCmd() *cobra.Command {
	var account, types string
	var limit int
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search across account entities",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{"accountId": {account}, "q": {args[0]}}
			if types != "" {
				q.Set("types", types)
			}
			if limit > 0 {
				q.Set("limit", strconv.Itoa(limit))
			}
			return c.call(cmd.Context(), http.MethodGet, "/api/search", q, nil)
		},
	}
	cmd.Flags().StringVar(&account, "account", "", "account id")
	cmd.Flags().StringVar(&types, "types", "", "comma separated entity types")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum results")
	return cmd
}
