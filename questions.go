package goRecover

// QuestionID identifies one kind of security question in the fixed catalog.
// The catalog is closed: there are no free-text questions, and ids are stable
// across releases so stored sets never need migration.
type QuestionID string

const (
	// QuestionBirthYear is an exported constant or variable used by the recovery engine.
	QuestionBirthYear QuestionID = "birth_year"
	// QuestionFatherBirthYear is an exported constant or variable used by the recovery engine.
	QuestionFatherBirthYear QuestionID = "father_birth_year"
	// QuestionMotherName is an exported constant or variable used by the recovery engine.
	QuestionMotherName QuestionID = "mother_name"
	// QuestionFatherName is an exported constant or variable used by the recovery engine.
	QuestionFatherName QuestionID = "father_name"
	// QuestionFavouriteColour is an exported constant or variable used by the recovery engine.
	QuestionFavouriteColour QuestionID = "favourite_colour"
)

// QuestionSetSize is the number of question/answer slots in every configured set.
const QuestionSetSize = 5

// ChallengeSize is the number of questions drawn for one verification attempt.
const ChallengeSize = 2

var catalogOrder = [QuestionSetSize]QuestionID{
	QuestionBirthYear,
	QuestionFatherBirthYear,
	QuestionMotherName,
	QuestionFatherName,
	QuestionFavouriteColour,
}

var catalogText = map[QuestionID]string{
	QuestionBirthYear:       "What is your birth year?",
	QuestionFatherBirthYear: "What is your father's birth year?",
	QuestionMotherName:      "What is your mother's name?",
	QuestionFatherName:      "What is your father's name?",
	QuestionFavouriteColour: "What is your favourite colour?",
}

// Catalog returns the full question catalog in its canonical order.
func Catalog() []QuestionID {
	out := make([]QuestionID, QuestionSetSize)
	copy(out, catalogOrder[:])
	return out
}

// QuestionText returns the display text for a catalog question, or the empty
// string for an unknown id.
func QuestionText(id QuestionID) string {
	return catalogText[id]
}

// IsCatalogQuestion reports whether id is a member of the fixed catalog.
func IsCatalogQuestion(id QuestionID) bool {
	_, ok := catalogText[id]
	return ok
}

// AvailableQuestions returns catalog entries not already used by the given
// set, in canonical order. It is a pure function used by the re-setup path;
// a nil set yields the whole catalog.
func AvailableQuestions(set *QuestionSet) []QuestionID {
	used := map[QuestionID]bool{}
	if set != nil {
		for _, slot := range set.Slots {
			used[slot.Question] = true
		}
	}

	out := make([]QuestionID, 0, QuestionSetSize)
	for _, id := range catalogOrder {
		if !used[id] {
			out = append(out, id)
		}
	}
	return out
}
