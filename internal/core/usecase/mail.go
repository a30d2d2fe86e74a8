package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"time"
	_ "time/tzdata"

	"github.com/rbroggi/communityevents/internal/core/model"
	"github.com/rbroggi/communityevents/internal/core/ports"
	log "github.com/sirupsen/logrus"
)

const (
	// Timezone is the civil timezone of the municipality. Mails and the reminder window use it.
	Timezone = "Asia/Tokyo"

	defaultLocationLabel = "未定"
	startDateLayout      = "2006/1/2 15:04:05"
)

// DefaultLocation is the loaded Timezone.
var DefaultLocation = mustLoadLocation(Timezone)

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(fmt.Sprintf("loading location %q: %v", name, err))
	}
	return loc
}

var (
	registrationTmpl = template.Must(template.New("registration").Parse(`
<h2>参加登録完了</h2>
<p>{{.Username}} 様</p>
<p>以下のイベントへの参加登録が完了しました。</p>
<ul>
  <li><strong>イベント名:</strong> {{.EventName}}</li>
  <li><strong>開催場所:</strong> {{.Location}}</li>
  <li><strong>開始日時:</strong> {{.StartDate}}</li>
</ul>
<p>当日のご参加をお待ちしております。</p>
`))

	participantCancellationTmpl = template.Must(template.New("participant-cancellation").Parse(`
<h2>参加キャンセル完了</h2>
<p>{{.Username}} 様</p>
<p>{{.EventName}} の参加がキャンセルされました。</p>
<p>またのご参加をお待ちしております。</p>
`))

	organizerCancellationTmpl = template.Must(template.New("organizer-cancellation").Parse(`
<h2>キャンセル通知</h2>
<p>{{.Username}} 様</p>
<p>{{.ParticipantName}} 様が {{.EventName}} の参加をキャンセルしました。</p>
`))

	reminderTmpl = template.Must(template.New("reminder").Parse(`
<h2>イベントリマインダー</h2>
<p>{{.Username}} 様</p>
<p>明日開催のイベントのリマインドです。</p>
<ul>
  <li><strong>イベント名:</strong> {{.EventName}}</li>
  <li><strong>開催場所:</strong> {{.Location}}</li>
  <li><strong>開始日時:</strong> {{.StartDate}}</li>
</ul>
<p>当日のご参加をお待ちしております。</p>
`))
)

type mailData struct {
	Username        string
	ParticipantName string
	EventName       string
	Location        string
	StartDate       string
}

func newMailData(recipient model.User, event model.Event, loc *time.Location) mailData {
	location := event.Location
	if location == "" {
		location = defaultLocationLabel
	}
	return mailData{
		Username:  recipient.Username,
		EventName: event.Name,
		Location:  location,
		StartDate: event.StartDate.In(loc).Format(startDateLayout),
	}
}

func render(tmpl *template.Template, data mailData) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("error rendering mail template %s: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}

func registrationMail(participationID string, user model.User, event model.Event, loc *time.Location) (model.MailEntry, error) {
	html, err := render(registrationTmpl, newMailData(user, event, loc))
	if err != nil {
		return model.MailEntry{}, err
	}
	return model.MailEntry{
		DedupKey: fmt.Sprintf("participation/%s/registered", participationID),
		To:       user.Mail,
		Subject:  fmt.Sprintf("【南砺市イベント】%s への参加登録が完了しました", event.Name),
		HTML:     html,
	}, nil
}

// cancellationKey identifies one attending -> cancelled transition. A participation reactivated and
// cancelled again gets a new key through its new cancellation instant.
func cancellationKey(participationID string, cancelledAt time.Time, recipient string) string {
	if cancelledAt.IsZero() {
		return fmt.Sprintf("participation/%s/cancelled/%s", participationID, recipient)
	}
	return fmt.Sprintf("participation/%s/cancelled/%d/%s", participationID, cancelledAt.UnixNano(), recipient)
}

func participantCancellationMail(participationID string, cancelledAt time.Time, user model.User, event model.Event, loc *time.Location) (model.MailEntry, error) {
	html, err := render(participantCancellationTmpl, newMailData(user, event, loc))
	if err != nil {
		return model.MailEntry{}, err
	}
	return model.MailEntry{
		DedupKey: cancellationKey(participationID, cancelledAt, "participant"),
		To:       user.Mail,
		Subject:  fmt.Sprintf("【南砺市イベント】%s の参加をキャンセルしました", event.Name),
		HTML:     html,
	}, nil
}

func organizerCancellationMail(participationID string, cancelledAt time.Time, organizer, participant model.User, event model.Event, loc *time.Location) (model.MailEntry, error) {
	data := newMailData(organizer, event, loc)
	data.ParticipantName = participant.Username
	html, err := render(organizerCancellationTmpl, data)
	if err != nil {
		return model.MailEntry{}, err
	}
	return model.MailEntry{
		DedupKey: cancellationKey(participationID, cancelledAt, "organizer"),
		To:       organizer.Mail,
		Subject:  fmt.Sprintf("【南砺市イベント】%s のキャンセル通知", event.Name),
		HTML:     html,
	}, nil
}

func reminderMail(participationID string, day time.Time, user model.User, event model.Event, loc *time.Location) (model.MailEntry, error) {
	html, err := render(reminderTmpl, newMailData(user, event, loc))
	if err != nil {
		return model.MailEntry{}, err
	}
	return model.MailEntry{
		DedupKey: fmt.Sprintf("reminder/%s/%s", participationID, day.Format("2006-01-02")),
		To:       user.Mail,
		Subject:  fmt.Sprintf("【リマインド】明日 %s が開催されます", event.Name),
		HTML:     html,
	}, nil
}

// enqueue writes the entry and reports whether it was new. A duplicate is not an error.
func enqueue(ctx context.Context, outbox ports.Outbox, entry model.MailEntry) (bool, error) {
	err := outbox.Enqueue(ctx, entry)
	if errors.Is(err, model.ErrAlreadyEnqueued) {
		log.WithField("dedup_key", entry.DedupKey).Debug("mail already enqueued")
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("error enqueuing mail [%s]: %w", entry.DedupKey, err)
	}
	log.WithField("dedup_key", entry.DedupKey).Info("mail enqueued")
	return true, nil
}

// lookupEvent returns nil without error when the event does not exist.
func lookupEvent(ctx context.Context, repository ports.Repository, id string) (*model.Event, error) {
	if id == "" {
		return nil, nil
	}
	event, err := repository.GetEvent(ctx, id)
	if errors.Is(err, model.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error fetching event [%s]: %w", id, err)
	}
	return event, nil
}

// lookupUser returns nil without error when the user does not exist.
func lookupUser(ctx context.Context, repository ports.Repository, id string) (*model.User, error) {
	if id == "" {
		return nil, nil
	}
	user, err := repository.GetUser(ctx, id)
	if errors.Is(err, model.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error fetching user [%s]: %w", id, err)
	}
	return user, nil
}
