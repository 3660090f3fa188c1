package notify

import (
	"fmt"

	"github.com/oszuidwest/zwfm-voicegate/internal/types"
	"github.com/oszuidwest/zwfm-voicegate/internal/util"
)

// sessionEmail renders the subject and body for a finished session.
func sessionEmail(station string, st *types.SessionStatus) (subject, body string) {
	if st.State == types.SessionFailed {
		subject = "[ALERT] Recording Failed - " + station
		body = fmt.Sprintf(
			"A recording session failed at %s.\n\n"+
				"File:     %s\n"+
				"Recorded: %s\n"+
				"Written:  %s\n"+
				"Error:    %s\n\n"+
				"The file was closed without finalizing its header.",
			util.HumanTime(), st.Path, util.FormatDuration(st.ElapsedMs),
			util.FormatBytes(st.BytesWritten), st.Error,
		)
		return subject, body
	}

	subject = "[OK] Recording Finished - " + station
	body = fmt.Sprintf(
		"A recording session finished at %s.\n\n"+
			"File:           %s\n"+
			"Duration:       %s\n"+
			"Written:        %s (%d frames)\n"+
			"Dropped frames: %d",
		util.HumanTime(), st.Path, util.FormatDuration(st.ElapsedMs),
		util.FormatBytes(st.BytesWritten), st.FramesWritten, st.FramesDropped,
	)
	return subject, body
}

// uploadFailedEmail renders the subject and body for an abandoned upload.
func uploadFailedEmail(station, path string, uploadErr error) (subject, body string) {
	subject = "[ALERT] Upload Abandoned - " + station
	body = fmt.Sprintf(
		"A recording upload was abandoned at %s.\n\n"+
			"File:       %s\n"+
			"Last error: %v\n\n"+
			"The file remains on local storage.",
		util.HumanTime(), path, uploadErr,
	)
	return subject, body
}
