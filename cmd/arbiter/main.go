// arbiter evaluates ABAC policy files offline.
//
//	arbiter validate -p policies.yaml
//	arbiter eval     -p policies.yaml -r request.json
//	arbiter explain  -p policies.yaml -r request.json
//	arbiter would-deny -p policies.yaml -r request.json
//
// eval and would-deny exit with status 2 when the request is denied, so
// they can gate shell scripts and CI checks.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/xraph/arbiter"
	"github.com/xraph/arbiter/policy"
	"github.com/xraph/arbiter/policyfile"
)

// exitDenied is the process status for a deny decision.
const exitDenied = 2

type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }
func (e *exitError) ExitCode() int { return e.code }

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		var coder interface{ ExitCode() int }
		if errors.As(err, &coder) {
			os.Exit(coder.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		printUsage(stderr)
		return nil
	}

	command := args[0]
	var (
		policiesPath string
		requestPath  string
		asJSON       bool
	)
	flagSet := pflag.NewFlagSet("arbiter "+command, pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVarP(&policiesPath, "policies", "p", "", "policy file (.yaml, .yml, .json, .jsonc)")
	flagSet.StringVarP(&requestPath, "request", "r", "", "evaluation context file (.yaml, .yml, .json, .jsonc)")
	flagSet.BoolVar(&asJSON, "json", false, "print machine-readable JSON")

	if err := flagSet.Parse(args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if policiesPath == "" {
		return errors.New("--policies is required")
	}

	policies, err := policyfile.Load(policiesPath)
	if err != nil {
		return err
	}
	if command == "validate" {
		return validate(stdout, policies, asJSON)
	}

	if requestPath == "" {
		return errors.New("--request is required")
	}
	ec, err := policyfile.LoadRequest(requestPath)
	if err != nil {
		return err
	}

	ev := arbiter.NewEvaluator()
	switch command {
	case "eval":
		return eval(stdout, ev, policies, ec, asJSON)
	case "explain":
		return explain(stdout, ev, policies, ec, asJSON)
	case "would-deny":
		return wouldDeny(stdout, ev, policies, ec, asJSON)
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func validate(w io.Writer, policies []*policy.Policy, asJSON bool) error {
	if asJSON {
		return writeJSON(w, map[string]any{"valid": true, "policies": len(policies)})
	}
	fmt.Fprintf(w, "%d policies valid\n", len(policies))
	return nil
}

func eval(w io.Writer, ev arbiter.Evaluator, policies []*policy.Policy, ec *arbiter.EvaluationContext, asJSON bool) error {
	result := ev.EvaluatePolicies(policies, ec)
	if asJSON {
		if err := writeJSON(w, result); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(w, "%s: %s\n", result.Decision, result.Reason)
	}
	if !result.Allowed() {
		return &exitError{code: exitDenied, msg: result.Reason}
	}
	return nil
}

func explain(w io.Writer, ev arbiter.Evaluator, policies []*policy.Policy, ec *arbiter.EvaluationContext, asJSON bool) error {
	result := ev.EvaluatePolicies(policies, ec)
	steps := make([]arbiter.MatchResult, 0, len(policies))
	for _, p := range policies {
		steps = append(steps, ev.EvaluatePolicy(p, ec))
	}

	if asJSON {
		return writeJSON(w, map[string]any{"result": result, "trace": steps})
	}
	fmt.Fprintf(w, "%s: %s\n\n", result.Decision, result.Reason)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "POLICY\tEFFECT\tPRIORITY\tMATCH\tREASON")
	for _, s := range steps {
		match := "no"
		if s.Matched {
			match = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", s.Policy.Name, s.Policy.Effect, s.Policy.Priority, match, s.MismatchReason)
	}
	return tw.Flush()
}

func wouldDeny(w io.Writer, ev arbiter.Evaluator, policies []*policy.Policy, ec *arbiter.EvaluationContext, asJSON bool) error {
	denied := ev.WouldDeny(policies, ec)
	if asJSON {
		if err := writeJSON(w, map[string]bool{"would_deny": denied}); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(w, "would deny: %t\n", denied)
	}
	if denied {
		return &exitError{code: exitDenied, msg: "denied by policy"}
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `arbiter evaluates ABAC policy files offline.

Usage:
  arbiter validate   -p POLICIES
  arbiter eval       -p POLICIES -r REQUEST [--json]
  arbiter explain    -p POLICIES -r REQUEST [--json]
  arbiter would-deny -p POLICIES -r REQUEST [--json]

eval and would-deny exit with status 2 when the request is denied.
`)
}
