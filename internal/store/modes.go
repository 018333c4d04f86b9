package store

import "fmt"

// Mode is one of the four fixed conversational contexts.
type Mode string

const (
	ModeSymptom      Mode = "symptom"
	ModeLab          Mode = "lab"
	ModePrescription Mode = "prescription"
	ModeMedication   Mode = "medication"
)

// Modes lists every mode in display order.
var Modes = []Mode{ModeSymptom, ModeLab, ModePrescription, ModeMedication}

// Profile carries the fixed presentation and prompt framing of a mode.
// An empty Framing means the user text is sent to the model unframed.
type Profile struct {
	Mode        Mode   `json:"mode"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Greeting    string `json:"initialMessage"`
	Framing     string `json:"-"`
	// AcceptsImages is true for modes that work from an uploaded document.
	AcceptsImages bool `json:"acceptsImages"`
}

// ParseMode validates a wire value.
func ParseMode(s string) (Mode, error) {
	m := Mode(s)
	if !m.Valid() {
		return "", fmt.Errorf("unknown mode %q", s)
	}
	return m, nil
}

func (m Mode) Valid() bool {
	switch m {
	case ModeSymptom, ModeLab, ModePrescription, ModeMedication:
		return true
	}
	return false
}

func (m Mode) String() string { return string(m) }

// Profile resolves the mode's profile. It panics on a mode that did not
// come through ParseMode or the constants above.
func (m Mode) Profile() Profile {
	switch m {
	case ModeSymptom:
		return Profile{
			Mode:        m,
			Title:       "Symptom Checker",
			Description: "Describe your symptoms conversationally to get preliminary guidance and understand urgency.",
			Greeting:    "Hello! I understand you're not feeling well. Please describe your symptoms in detail, and I'll do my best to provide some initial guidance. Remember to consult a doctor for a proper diagnosis.",
		}
	case ModeLab:
		return Profile{
			Mode:          m,
			Title:         "Lab Report Interpretation",
			Description:   "Upload any lab report to get easy-to-read summaries and explanations of the values.",
			Greeting:      "Hello! You can upload your lab report here. I will help you understand what the different values mean in simple terms. This is for informational purposes only; please discuss the results with your doctor.",
			Framing:       "Please interpret this lab report.",
			AcceptsImages: true,
		}
	case ModePrescription:
		return Profile{
			Mode:          m,
			Title:         "Prescription Explanation",
			Description:   "Get clear explanations of your prescribed medicines, their purpose, dosage, and side effects.",
			Greeting:      "Hello! Please upload a picture of your prescription. I can help explain the medications, their purpose, and common side effects. Always follow your doctor's prescribed dosage and instructions.",
			Framing:       "Please explain this prescription.",
			AcceptsImages: true,
		}
	case ModeMedication:
		return Profile{
			Mode:        m,
			Title:       "Medication Information",
			Description: "Learn about medications, their uses, and potential side effects. Not a prescription service.",
			Greeting:    "Hello! I can provide information about specific medications or common treatments for certain conditions. What would you like to know? Please note, this is for educational purposes only and is not a prescription.",
			Framing:     "Please provide educational information about the following, without giving a prescription or medical advice:",
		}
	}
	panic(fmt.Sprintf("store: no profile for mode %q", string(m)))
}
