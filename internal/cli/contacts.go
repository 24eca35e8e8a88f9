package cli

import (
	"strings"

	"crewdesk/internal/model"
	"crewdesk/internal/notes"
	"crewdesk/internal/perm"

	"github.com/spf13/cobra"
)

func newContactsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "contacts",
		Aliases: []string{"contact"},
		Short:   "Contact commands",
	}
	cmd.AddCommand(newContactsListCmd(app))
	cmd.AddCommand(newContactsShowCmd(app))
	cmd.AddCommand(newContactsCreateCmd(app))
	cmd.AddCommand(newContactsEditCmd(app))
	cmd.AddCommand(newContactsDeleteCmd(app))
	cmd.AddCommand(newContactsNotesCmd(app))
	cmd.AddCommand(newContactsNoteCmd(app))
	return cmd
}

// contactView carries the decoded annotations next to the raw notes.
type contactView struct {
	model.Contact
	Annotations []model.Annotation `json:"annotations"`
}

func viewContact(c model.Contact) contactView {
	return contactView{Contact: c, Annotations: notes.DecodeAll(c.Notes)}
}

func newContactsListCmd(app *App) *cobra.Command {
	var query string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List contacts",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := app.authorize(cmd, perm.ContactsView); err != nil {
				return writeErr(cmd, err)
			}
			all, err := app.client.Contacts(cmd.Context())
			if err != nil {
				return writeErr(cmd, err)
			}
			out := all[:0:0]
			q := strings.ToLower(strings.TrimSpace(query))
			for _, c := range all {
				if q == "" || contactMatches(c, q) {
					out = append(out, c)
				}
			}
			if app.Format == "table" {
				return writeOut(cmd, app, contactTable(out))
			}
			return writeOut(cmd, app, map[string]any{"data": out})
		},
	}

	cmd.Flags().StringVarP(&query, "query", "q", "", "Case-insensitive match on name, email or company")
	return cmd
}

func contactMatches(c model.Contact, q string) bool {
	fields := []string{c.Name}
	for _, p := range []*string{c.Email, c.Company} {
		if p != nil {
			fields = append(fields, *p)
		}
	}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), q) {
			return true
		}
	}
	return false
}

func newContactsShowCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show <contact-id>",
		Short: "Show a contact with its decoded notes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := app.authorize(cmd, perm.ContactsView); err != nil {
				return writeErr(cmd, err)
			}
			c, err := app.client.Contact(cmd.Context(), args[0])
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{"data": viewContact(c)})
		},
	}
}

type contactFlags struct {
	name, email, phone, company, position string
}

func (f *contactFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.name, "name", "", "Name")
	cmd.Flags().StringVar(&f.email, "email", "", "Email")
	cmd.Flags().StringVar(&f.phone, "phone", "", "Phone")
	cmd.Flags().StringVar(&f.company, "company", "", "Company")
	cmd.Flags().StringVar(&f.position, "position", "", "Position")
}

// input includes only the flags the user set.
func (f *contactFlags) input(cmd *cobra.Command) model.ContactInput {
	in := model.ContactInput{Name: f.name}
	f.apply(cmd, &in)
	return in
}

// apply overwrites the fields of in whose flags were set. An empty value
// clears an optional field.
func (f *contactFlags) apply(cmd *cobra.Command, in *model.ContactInput) {
	if cmd.Flags().Changed("name") {
		in.Name = f.name
	}
	set := func(flag string, v string, dst **string) {
		if !cmd.Flags().Changed(flag) {
			return
		}
		if strings.TrimSpace(v) == "" {
			*dst = nil
			return
		}
		*dst = &v
	}
	set("email", f.email, &in.Email)
	set("phone", f.phone, &in.Phone)
	set("company", f.company, &in.Company)
	set("position", f.position, &in.Position)
}

func newContactsCreateCmd(app *App) *cobra.Command {
	var f contactFlags

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a contact (founders only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := app.authorize(cmd, perm.ContactsCreate); err != nil {
				return writeErr(cmd, err)
			}
			c, err := app.client.CreateContact(cmd.Context(), f.input(cmd))
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{"data": c})
		},
	}
	f.bind(cmd)
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newContactsEditCmd(app *App) *cobra.Command {
	var f contactFlags

	cmd := &cobra.Command{
		Use:   "edit <contact-id>",
		Short: "Edit a contact (founders only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := app.authorize(cmd, perm.ContactsEdit); err != nil {
				return writeErr(cmd, err)
			}
			// The backend replaces the whole record, so unset flags keep
			// their current values.
			cur, err := app.client.Contact(cmd.Context(), args[0])
			if err != nil {
				return writeErr(cmd, err)
			}
			in := cur.Input()
			f.apply(cmd, &in)
			c, err := app.client.UpdateContact(cmd.Context(), cur.ID, in)
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{"data": c})
		},
	}
	f.bind(cmd)
	return cmd
}

func newContactsDeleteCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <contact-id>",
		Short: "Delete a contact (founders only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := app.authorize(cmd, perm.ContactsDelete); err != nil {
				return writeErr(cmd, err)
			}
			if err := app.client.DeleteContact(cmd.Context(), args[0]); err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{"data": map[string]any{"id": args[0], "deleted": true}})
		},
	}
}

func newContactsNotesCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "notes <contact-id>",
		Short: "List a contact's notes, decoded",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := app.authorize(cmd, perm.ContactsView); err != nil {
				return writeErr(cmd, err)
			}
			c, err := app.client.Contact(cmd.Context(), args[0])
			if err != nil {
				return writeErr(cmd, err)
			}
			anns := notes.DecodeAll(c.Notes)
			if app.Format == "table" {
				return writeOut(cmd, app, notesTable(anns))
			}
			return writeOut(cmd, app, map[string]any{"data": anns})
		},
	}
}

func newContactsNoteCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "note <contact-id> <text>...",
		Short: "Append a note to a contact",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := app.authorize(cmd, perm.ContactsNote); err != nil {
				return writeErr(cmd, err)
			}
			c, err := app.client.AddNote(cmd.Context(), args[0], strings.Join(args[1:], " "))
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{"data": viewContact(c)})
		},
	}
}
