package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"estatecollab/internal/syncagent"
)

func collabCmd() *cobra.Command {
	c := &cobra.Command{Use: "collab", Short: "Manage collaborations"}
	c.AddCommand(collabListCmd())
	c.AddCommand(collabGetCmd())
	c.AddCommand(collabProposeCmd())
	c.AddCommand(collabRespondCmd())
	c.AddCommand(collabContractCmd())
	c.AddCommand(collabSignCmd())
	c.AddCommand(collabActivateCmd())
	c.AddCommand(collabValidateCmd())
	c.AddCommand(collabNoteCmd())
	c.AddCommand(collabTerminateCmd())
	return c
}

func collabListCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List collaborations you take part in",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			items, err := c.ListCollaborations(cmd.Context(), status)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(items)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"ID", "Post", "Role", "Status", "Step", "Signed"})
			for _, it := range items {
				tw.AppendRow(table.Row{it.ID, it.Post.Type + ":" + it.Post.ID, it.Role, it.Status, it.CurrentProgressStep, signedLabel(it.Signatures)})
			}
			tw.Render()
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	return cmd
}

func collabGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show a collaboration with its progress steps",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			it, err := c.GetCollaboration(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printCollaboration(it)
		},
	}
}

func collabProposeCmd() *cobra.Command {
	var (
		property, searchAd   string
		amount, percentage   float64
		commission           float64
		message, contractTxt string
	)
	cmd := &cobra.Command{
		Use:   "propose",
		Short: "Propose a collaboration on someone else's post",
		RunE: func(cmd *cobra.Command, args []string) error {
			p := syncagent.ProposeParams{ProposedCommission: commission, Message: message, ContractText: contractTxt}
			switch {
			case property != "" && searchAd == "":
				p.Post = syncagent.PostRef{Type: "property", ID: property}
			case searchAd != "" && property == "":
				p.Post = syncagent.PostRef{Type: "search_ad", ID: searchAd}
			default:
				return errors.New("exactly one of --property and --search-ad is required")
			}
			switch {
			case cmd.Flags().Changed("amount") && !cmd.Flags().Changed("percentage"):
				p.Amount = &amount
			case cmd.Flags().Changed("percentage") && !cmd.Flags().Changed("amount"):
				p.Percentage = &percentage
			default:
				return errors.New("exactly one of --amount and --percentage is required")
			}

			c, err := newClient()
			if err != nil {
				return err
			}
			it, err := c.Propose(cmd.Context(), p)
			if err != nil {
				return err
			}
			return printCollaboration(it)
		},
	}
	cmd.Flags().StringVar(&property, "property", "", "property id")
	cmd.Flags().StringVar(&searchAd, "search-ad", "", "search ad id")
	cmd.Flags().Float64Var(&amount, "amount", 0, "fixed compensation amount")
	cmd.Flags().Float64Var(&percentage, "percentage", 0, "compensation as a percentage")
	cmd.Flags().Float64Var(&commission, "commission", 0, "proposed commission percentage")
	cmd.Flags().StringVar(&message, "message", "", "message to the owner")
	cmd.Flags().StringVar(&contractTxt, "contract", "", "initial contract text")
	return cmd
}

func collabRespondCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "respond <id> <accepted|rejected>",
		Short: "Accept or reject a proposal on your post",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			it, err := c.Respond(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return printCollaboration(it)
		},
	}
}

func collabContractCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "contract <id> [text]",
		Short: "Replace the contract text; both signatures are cleared",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var text string
			switch {
			case file != "":
				b, err := os.ReadFile(file)
				if err != nil {
					return err
				}
				text = string(b)
			case len(args) == 2:
				text = args[1]
			default:
				return errors.New("contract text or --file is required")
			}
			c, err := newClient()
			if err != nil {
				return err
			}
			it, err := c.UpdateContract(cmd.Context(), args[0], text)
			if err != nil {
				return err
			}
			return printCollaboration(it)
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "read the contract text from a file")
	return cmd
}

func collabSignCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sign <id>",
		Short: "Sign the current contract version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			it, fully, err := c.Sign(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(map[string]any{"collaboration": it, "fully_signed": fully})
			}
			if fully {
				fmt.Printf("contract v%d signed by both parties\n", it.Signatures.ContractVersion)
			} else {
				fmt.Printf("contract v%d signed, waiting for the other party\n", it.Signatures.ContractVersion)
			}
			return nil
		},
	}
}

func collabActivateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "activate <id>",
		Short: "Activate an accepted collaboration once the contract is signed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			it, err := c.Activate(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printCollaboration(it)
		},
	}
}

func collabValidateCmd() *cobra.Command {
	var note string
	cmd := &cobra.Command{
		Use:   "validate <id> <step>",
		Short: "Validate a progress step from your side",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			it, err := c.ValidateStep(cmd.Context(), args[0], args[1], note)
			if err != nil {
				return err
			}
			return printCollaboration(it)
		},
	}
	cmd.Flags().StringVar(&note, "note", "", "note attached to the step")
	return cmd
}

func collabNoteCmd() *cobra.Command {
	var step string
	cmd := &cobra.Command{
		Use:   "note <id> <content>",
		Short: "Add a note to a step, or to the activity log without --step",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			it, err := c.AddNote(cmd.Context(), args[0], args[1], step)
			if err != nil {
				return err
			}
			return printCollaboration(it)
		},
	}
	cmd.Flags().StringVar(&step, "step", "", "progress step key")
	return cmd
}

func collabTerminateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "terminate <id> <completed|cancelled>",
		Short: "End an active collaboration",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			it, err := c.Terminate(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return printCollaboration(it)
		},
	}
}

func printCollaboration(it syncagent.Collaboration) error {
	if viper.GetBool("json") {
		return printJSON(it)
	}
	fmt.Printf("%s  %s:%s  status=%s  role=%s  contract=v%d (%s)\n",
		it.ID, it.Post.Type, it.Post.ID, it.Status, it.Role, it.Signatures.ContractVersion, signedLabel(it.Signatures))
	if len(it.Steps) == 0 {
		return nil
	}

	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"", "Step", "Owner", "Collaborator", "Done"})
	for _, s := range it.Steps {
		marker := ""
		if s.Key == it.CurrentProgressStep {
			marker = ">"
		}
		tw.AppendRow(table.Row{marker, s.Label, check(s.OwnerValidated), check(s.CollaboratorValidated), check(s.Completed)})
	}
	tw.Render()
	return nil
}

func signedLabel(s syncagent.Signatures) string {
	switch {
	case s.AwaitingResignature:
		return "re-signature required"
	case s.FullySigned:
		return "signed"
	}
	var parts []string
	if s.OwnerSigned {
		parts = append(parts, "owner")
	}
	if s.CollaboratorSigned {
		parts = append(parts, "collaborator")
	}
	if len(parts) == 0 {
		return "unsigned"
	}
	return "signed by " + strings.Join(parts, ", ")
}

func check(b bool) string {
	if b {
		return "x"
	}
	return ""
}
