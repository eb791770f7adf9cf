package wire

import "fmt"

// Action discriminates what a transfer envelope carries. The enum is
// closed: decoding rejects unknown values instead of guessing from
// payload shape.
type Action int

const (
	// ActionTransferOfValue moves funds between identities.
	ActionTransferOfValue Action = iota
	// ActionAddInsurances offers a batch of co-signed diplomas to an
	// employer.
	ActionAddInsurances
	// ActionTeacherIdentity announces a teacher's identity and display
	// name (scanned by students to address later transfers).
	ActionTeacherIdentity
	// ActionLessonRequest asks a tutor for a session: skills to learn
	// plus existing diplomas to reexamine.
	ActionLessonRequest
	// ActionLessonResult returns a finished session's letters and
	// penalty records to the student.
	ActionLessonResult
)

var actionNames = map[Action]string{
	ActionTransferOfValue: "transfer-of-value",
	ActionAddInsurances:   "add-insurances",
	ActionTeacherIdentity: "teacher-identity",
	ActionLessonRequest:   "lesson-request",
	ActionLessonResult:    "lesson-result",
}

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	_, ok := actionNames[a]
	return ok
}

func (a Action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return fmt.Sprintf("action(%d)", int(a))
}
