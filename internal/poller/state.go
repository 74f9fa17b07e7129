package poller

import (
	"github.com/example/comms-ninja/internal/analysis"
)

type Phase string

const (
	PhaseProcessing   Phase = "processing"
	PhaseCompleted    Phase = "completed"
	PhaseFailed       Phase = "failed"
	PhaseNetworkError Phase = "network_error"
	PhaseTimedOut     Phase = "timed_out"
)

const (
	// MaxErrorDisplay bounds the failure message shown to the user.
	MaxErrorDisplay = 300

	networkErrorMessage = "Network error. Please check your connection."
	timedOutMessage     = "The analysis is taking longer than expected. Check back from your dashboard in a few minutes."
)

// State is what the surrounding UI renders for a polled job.
type State struct {
	Phase       Phase           `json:"phase"`
	Status      analysis.Status `json:"status,omitempty"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Error       string          `json:"error,omitempty"`
	Attempts    int             `json:"attempts"`
	Job         *analysis.Job   `json:"job,omitempty"`
}

// Terminal reports whether polling has ended in this state.
func (s State) Terminal() bool {
	return s.Phase != PhaseProcessing
}

// MapJob turns a fetched job into its presentable state.
func MapJob(job analysis.Job) State {
	status := analysis.Normalize(job.Status)
	j := job
	j.Status = status
	st := State{Status: status, Job: &j}

	switch status {
	case analysis.StatusCompleted:
		st.Phase = PhaseCompleted
		st.Title = "Analysis Complete"
		st.Description = "Your executive presence report is ready."
	case analysis.StatusFailed:
		st.Phase = PhaseFailed
		st.Title = "Analysis Could Not Be Completed"
		st.Description = "Something went wrong during the analysis process."
		if job.ErrorMessage != nil {
			st.Error = truncate(*job.ErrorMessage, MaxErrorDisplay)
		}
	case analysis.StatusQueued:
		st.Phase = PhaseProcessing
		st.Title = "Analysis Queued"
		st.Description = "Your analysis is waiting to be processed. This will start shortly..."
	case analysis.StatusDownloading:
		st.Phase = PhaseProcessing
		st.Title = "Downloading Audio Content"
		st.Description = "YouTube transcript is unavailable. We are downloading the audio for an AI multimodal analysis (voice & tone)."
	default:
		st.Phase = PhaseProcessing
		st.Title = "Analyzing Executive Presence"
		st.Description = "AI is analyzing communication patterns, vocal dynamics, and leadership presence. This usually takes 15–30 seconds."
	}
	return st
}

func networkErrorState() State {
	return State{
		Phase:       PhaseNetworkError,
		Title:       "Connection Problem",
		Description: networkErrorMessage,
		Error:       networkErrorMessage,
	}
}

func timedOutState(last State) State {
	last.Phase = PhaseTimedOut
	last.Title = "Still Working"
	last.Description = timedOutMessage
	last.Error = timedOutMessage
	return last
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
