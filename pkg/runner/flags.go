package runner

import (
	"fmt"
	"strings"
)

// Version is printed by -v/--version.
const Version = "1.2.0"

// FlagAliases defines a group of flag names that are aliases for the same option
type FlagAliases struct {
	Names    []string // e.g., ["-m", "--model"]
	TakesArg bool     // true if the flag takes an argument
}

// CheckDuplicateFlags scans args for duplicate flags with conflicting values
// Returns an error describing the conflict, or nil if no conflicts found
func CheckDuplicateFlags(args []string, flagGroups []FlagAliases) error {
	for _, group := range flagGroups {
		var values []string
		var flagsUsed []string

		for i := 0; i < len(args); i++ {
			arg := args[i]
			if arg == "--" {
				break
			}

			for _, flagName := range group.Names {
				if group.TakesArg {
					// "-m value" or "--model value"
					if arg == flagName && i+1 < len(args) {
						values = append(values, args[i+1])
						flagsUsed = append(flagsUsed, flagName)
						i++ // skip the value
						break
					}
					// "-m=value" or "--model=value"
					if strings.HasPrefix(arg, flagName+"=") {
						values = append(values, arg[len(flagName)+1:])
						flagsUsed = append(flagsUsed, flagName)
						break
					}
				} else if arg == flagName {
					values = append(values, "true")
					flagsUsed = append(flagsUsed, flagName)
					break
				}
			}
		}

		if len(values) > 1 {
			allSame := true
			for _, v := range values[1:] {
				if v != values[0] {
					allSame = false
					break
				}
			}
			if !allSame {
				return fmt.Errorf("conflicting flags: %s specified multiple times with different values (%s)",
					strings.Join(flagsUsed, ", "), strings.Join(values, " vs "))
			}
		}
	}
	return nil
}

// CommonFlagGroups returns the flag groups shared by both programs
func CommonFlagGroups() []FlagAliases {
	return []FlagAliases{
		{Names: []string{"-m", "--model"}, TakesArg: true},
		{Names: []string{"--fallback-model"}, TakesArg: true},
		{Names: []string{"--backend"}, TakesArg: true},
		{Names: []string{"--cooldown"}, TakesArg: true},
		{Names: []string{"--dry-run"}, TakesArg: false},
		{Names: []string{"--stream"}, TakesArg: false},
		{Names: []string{"--verbose"}, TakesArg: false},
	}
}

// ScaffoldFlagGroups returns the flag groups of the project scaffolder
func ScaffoldFlagGroups() []FlagAliases {
	return append(CommonFlagGroups(),
		FlagAliases{Names: []string{"--skip-tests"}},
		FlagAliases{Names: []string{"--skip-review"}},
	)
}

// MigrateFlagGroups returns the flag groups of the test migrator
func MigrateFlagGroups() []FlagAliases {
	return append(CommonFlagGroups(),
		FlagAliases{Names: []string{"--source-framework"}, TakesArg: true},
		FlagAliases{Names: []string{"--target-framework"}, TakesArg: true},
		FlagAliases{Names: []string{"--source-lang"}, TakesArg: true},
		FlagAliases{Names: []string{"--target-lang"}, TakesArg: true},
	)
}
