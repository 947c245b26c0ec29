package sessionmgr

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/quizengine/session-engine/internal/model"
)

// encodeSession flattens a Session into the string-valued hash fields the
// fast store persists it as.
func encodeSession(sess *model.Session) (map[string]string, error) {
	participantsJSON, err := json.Marshal(sess.Participants)
	if err != nil {
		return nil, fmt.Errorf("sessionmgr: marshal participants: %w", err)
	}

	fields := map[string]string{
		"quiz_id":                 sess.QuizID,
		"quiz_title":              sess.QuizTitle,
		"host_id":                 sess.HostID,
		"status":                  string(sess.Status),
		"current_question_index":  strconv.Itoa(sess.CurrentQuestionIndex),
		"total_questions":         strconv.Itoa(sess.TotalQuestions),
		"per_question_time_limit": strconv.Itoa(sess.PerQuestionTimeLimit),
		"auto_advance":            strconv.FormatBool(sess.AutoAdvance),
		"created_at":              sess.CreatedAt.Format(time.RFC3339Nano),
		"expires_at":              sess.ExpiresAt.Format(time.RFC3339Nano),
		"participants":            string(participantsJSON),
		"host_reclaim_hash":       sess.HostReclaimHash,
	}
	if sess.QuizStartTime != nil {
		fields["quiz_start_time"] = sess.QuizStartTime.Format(time.RFC3339Nano)
	}
	return fields, nil
}

// decodeSession rebuilds a Session from the raw hash fields.
func decodeSession(code string, fields map[string]string) (*model.Session, error) {
	sess := &model.Session{
		Code:      code,
		QuizID:    fields["quiz_id"],
		QuizTitle: fields["quiz_title"],
		HostID:    fields["host_id"],
		Status:    model.Status(fields["status"]),
		HostReclaimHash: fields["host_reclaim_hash"],
	}

	sess.CurrentQuestionIndex, _ = strconv.Atoi(fields["current_question_index"])
	sess.TotalQuestions, _ = strconv.Atoi(fields["total_questions"])
	sess.PerQuestionTimeLimit, _ = strconv.Atoi(fields["per_question_time_limit"])
	sess.AutoAdvance, _ = strconv.ParseBool(fields["auto_advance"])

	if v := fields["created_at"]; v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			sess.CreatedAt = t
		}
	}
	if v := fields["expires_at"]; v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			sess.ExpiresAt = t
		}
	}
	if v := fields["quiz_start_time"]; v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			sess.QuizStartTime = &t
		}
	}

	sess.Participants = map[string]*model.Participant{}
	if v := fields["participants"]; v != "" {
		if err := json.Unmarshal([]byte(v), &sess.Participants); err != nil {
			return nil, fmt.Errorf("sessionmgr: unmarshal participants for %s: %w", code, err)
		}
	}

	return sess, nil
}
