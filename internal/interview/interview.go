// Package interview holds the domain configuration for a mock interview
// session and turns it into the system instruction given to the live model.
package interview

import (
	"errors"
	"fmt"
	"strings"
)

// Config describes the interview to simulate.
type Config struct {
	// Role is the position being interviewed for, e.g. "Backend Engineer".
	Role string `yaml:"role"`

	// Company is the company conducting the interview. Optional; when empty
	// the interviewer stays generic.
	Company string `yaml:"company"`

	// Experience is the candidate's experience level, e.g. "senior" or
	// "3 years". Optional.
	Experience string `yaml:"experience"`
}

// Validate checks the config for completeness.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Role) == "" {
		errs = append(errs, errors.New("interview: role must not be empty"))
	}
	return errors.Join(errs...)
}

// SystemInstruction renders the interviewer persona prompt for the live
// session. The model conducts the interview; it asks, listens, and probes,
// but never answers its own questions.
func (c Config) SystemInstruction() string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are an experienced interviewer conducting a mock job interview for the position of %s", c.Role)
	if c.Company != "" {
		fmt.Fprintf(&b, " at %s", c.Company)
	}
	b.WriteString(".")
	if c.Experience != "" {
		fmt.Fprintf(&b, " The candidate has %s of experience; calibrate question difficulty accordingly.", c.Experience)
	}
	b.WriteString(" Ask one question at a time and wait for the candidate to finish answering." +
		" Follow up on vague or incomplete answers before moving on." +
		" Keep your own remarks brief and spoken-word natural; this is a voice conversation." +
		" Do not answer questions on the candidate's behalf." +
		" Open the interview by greeting the candidate and asking them to introduce themselves.")
	return b.String()
}
