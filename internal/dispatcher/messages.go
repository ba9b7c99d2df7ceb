package dispatcher

import (
	"context"

	apperrors "flowbar/backend/internal/errors"
	"flowbar/backend/internal/model"
	"flowbar/backend/internal/service"
)

// Control message actions sent by the popup and the sanctuary page.
const (
	ActionStartTimer       = "startTimer"
	ActionPauseTimer       = "pauseTimer"
	ActionResumeTimer      = "resumeTimer"
	ActionResetTimer       = "resetTimer"
	ActionStopTimer        = "stopTimer"
	ActionToggleTimer      = "toggleTimer"
	ActionGetTimerInfo     = "getTimerInfo"
	ActionAllowDistraction = "allowDistractionFor60s"
)

type Message struct {
	Action string `json:"action"`
	Site   string `json:"site,omitempty"`
	URL    string `json:"url,omitempty"`
}

// Response answers a control message. Timer fields are inlined so
// getTimerInfo reads {success, timeLeft, timerState, ...}.
type Response struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
	*model.TimerInfo
	ElapsedSeconds *int                 `json:"elapsedSeconds,omitempty"`
	Grant          *service.AllowResult `json:"grant,omitempty"`

	status int
}

// Status is the HTTP status matching the response.
func (r Response) Status() int {
	if r.status == 0 {
		return 200
	}
	return r.status
}

func failure(apiErr *apperrors.APIError) Response {
	if apiErr == nil {
		apiErr = apperrors.Internal("")
	}
	return Response{Success: false, Error: apiErr.Message, Code: apiErr.Code, status: apiErr.Status}
}

func timerResponse(info *model.TimerInfo, apiErr *apperrors.APIError) Response {
	if apiErr != nil {
		return failure(apiErr)
	}
	return Response{Success: true, TimerInfo: info}
}

// HandleMessage executes one control message. Invalid transitions come back
// as an unsuccessful response, never as a panic or error.
func (d *Dispatcher) HandleMessage(ctx context.Context, msg Message) Response {
	var response Response
	switch msg.Action {
	case ActionStartTimer:
		response = timerResponse(d.timer.Start(ctx))
	case ActionPauseTimer:
		response = timerResponse(d.timer.Pause(ctx))
	case ActionResumeTimer:
		response = timerResponse(d.timer.Resume(ctx))
	case ActionResetTimer:
		response = timerResponse(d.timer.Reset(ctx))
	case ActionToggleTimer:
		response = timerResponse(d.timer.Toggle(ctx))
	case ActionStopTimer:
		result, apiErr := d.timer.Stop(ctx)
		if apiErr != nil {
			response = failure(apiErr)
			break
		}
		elapsed := result.ElapsedSeconds
		response = Response{Success: true, TimerInfo: &result.Info, ElapsedSeconds: &elapsed}
	case ActionGetTimerInfo:
		info := d.timer.Info(ctx)
		response = Response{Success: true, TimerInfo: &info}
	case ActionAllowDistraction:
		grant, apiErr := d.gate.AllowFor(ctx, msg.Site, msg.URL)
		if apiErr != nil {
			response = failure(apiErr)
			break
		}
		response = Response{Success: true, Grant: grant}
	default:
		response = failure(apperrors.NotFound("unknown_action", "unknown action: "+msg.Action))
	}

	if !response.Success {
		d.logger.Warn("control message rejected", "action", msg.Action, "code", response.Code, "error", response.Error)
	} else {
		d.logger.Debug("control message handled", "action", msg.Action)
	}
	return response
}
