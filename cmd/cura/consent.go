package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

const disclaimer = `Cura AI is an AI-powered informational tool. It is not a doctor and cannot
provide medical diagnoses, treatment, or prescriptions.

Always consult a qualified healthcare professional for medical advice. In
emergencies, contact your local emergency services immediately.

By continuing, you acknowledge that you understand these limitations and agree
that this tool is for informational purposes only.
`

func newConsentCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:       "consent [accept|decline|status]",
		Short:     "Show or record the disclaimer consent",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"accept", "decline", "status"},
		RunE: func(cmd *cobra.Command, args []string) error {
			action := "status"
			if len(args) == 1 {
				action = args[0]
			}
			ctx := cmd.Context()

			switch action {
			case "status":
				if a.gw.CheckConsent(ctx) {
					a.printf("Consent: accepted\n")
				} else {
					a.printf("Consent: not given\n\n%s", disclaimer)
				}
				return nil
			case "accept", "decline":
				accepted := action == "accept"
				if err := a.gw.SetConsent(ctx, accepted); err != nil {
					// the local record stands; the server catches up on the next accept
					a.printf("Saved locally; the server could not be reached.\n")
				}
				if accepted {
					a.printf("Consent recorded.\n")
				} else {
					a.printf("Consent withdrawn.\n")
				}
				return nil
			}
			return fmt.Errorf("unknown consent action %q", action)
		},
	}
}

// ensureConsent runs the consent gate before a chat opens.
func (a *app) ensureConsent(cmd *cobra.Command) error {
	if a.gw.CheckConsent(cmd.Context()) {
		return nil
	}
	a.printf("%s\n", disclaimer)
	if !a.confirm("I understand and agree") {
		return fmt.Errorf("consent is required to start a chat")
	}
	_ = a.gw.SetConsent(cmd.Context(), true)
	return nil
}
