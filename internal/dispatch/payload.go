package dispatch

import (
	"time"

	"jetstream/internal/jobs"
	"jetstream/internal/sender/appsflyer"
)

const eventTimeLayout = "2006-01-02 15:04:05.000"

// Static revenue metadata attached to every event.
const eventValue = `{"af_revenue":"70","af_currency":"USD"}`

// buildEvent maps one CSV row onto the outbound payload. Missing event
// name defaults to "confirmed"; missing event time defaults to now.
func buildEvent(row jobs.Record, now time.Time) appsflyer.Event {
	name := row["eventname"]
	if name == "" {
		name = "confirmed"
	}
	ts := row["eventtime"]
	if ts == "" {
		ts = now.Format(eventTimeLayout)
	}
	return appsflyer.Event{
		AppsflyerID:   row["appsflyer_id"],
		AdvertisingID: row["advertising_id"],
		AndroidID:     row["android_id"],
		Country:       row["country"],
		IP:            row["user_ip"],
		EventName:     name,
		EventTime:     ts,
		EventValue:    eventValue,
	}
}
