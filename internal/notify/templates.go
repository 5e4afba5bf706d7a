package notify

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/shopspring/decimal"
)

var (
	donationTmpl = template.Must(template.New("donation").Parse(`<p>Hi {{.Name}},</p>
<p>Thank you for your generous donation of <strong>{{.Amount}}</strong> to support <strong>{{.Title}}</strong>.</p>
<p><a href="{{.URL}}">View Campaign</a></p>`))

	updateTmpl = template.Must(template.New("update").Parse(`<p>Hi {{.Name}},</p>
<p>The campaign <strong>{{.Title}}</strong> that you supported has an update.</p>
<p>{{.Body}}</p>
<p><strong>{{.Current}}</strong> raised of <strong>{{.Goal}}</strong> goal ({{.Percent}}%)</p>
<p><a href="{{.URL}}">View Full Campaign</a></p>`))

	milestoneTmpl = template.Must(template.New("milestone").Parse(`<p>Hi {{.Name}},</p>
<p><strong>{{.Title}}</strong> has reached <strong>{{.Milestone}}%</strong> of its funding goal, thanks to supporters like you!</p>
<p><strong>{{.Current}}</strong> of <strong>{{.Goal}}</strong></p>
<p><a href="{{.URL}}">Celebrate with Us</a></p>`))

	testTmpl = template.Must(template.New("test").Parse(`<p>Hi {{.Name}},</p>
<p>This is a test email from CrowdFundIn. If you can read it, outgoing email is configured correctly.</p>`))
)

type templateData struct {
	Name      string
	Title     string
	Body      string
	URL       string
	Amount    string
	Current   string
	Goal      string
	Percent   string
	Milestone int
}

func render(t *template.Template, data templateData) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// CampaignURL 前端活动页地址
func CampaignURL(frontendURL, campaignID string) string {
	return fmt.Sprintf("%s/campaigns/%s", frontendURL, campaignID)
}

func displayName(name string) string {
	if name == "" {
		return "Supporter"
	}
	return name
}

func DonationConfirmation(to, name, title string, amount decimal.Decimal, url string) (Message, error) {
	html, err := render(donationTmpl, templateData{
		Name:   displayName(name),
		Title:  title,
		Amount: amount.StringFixed(2),
		URL:    url,
	})
	if err != nil {
		return Message{}, err
	}
	return Message{To: to, Subject: fmt.Sprintf("Thank you for supporting %s!", title), HTML: html}, nil
}

func CampaignUpdate(to, name, title, body, url string, current, goal decimal.Decimal) (Message, error) {
	percent := decimal.Zero
	if goal.IsPositive() {
		percent = current.Div(goal).Mul(decimal.NewFromInt(100)).Round(0)
	}
	html, err := render(updateTmpl, templateData{
		Name:    displayName(name),
		Title:   title,
		Body:    body,
		URL:     url,
		Current: current.StringFixed(2),
		Goal:    goal.StringFixed(2),
		Percent: percent.String(),
	})
	if err != nil {
		return Message{}, err
	}
	return Message{To: to, Subject: fmt.Sprintf("Update on %s - Campaign You Supported", title), HTML: html}, nil
}

func Milestone(to, name, title string, milestone int, url string, current, goal decimal.Decimal) (Message, error) {
	html, err := render(milestoneTmpl, templateData{
		Name:      displayName(name),
		Title:     title,
		URL:       url,
		Current:   current.StringFixed(2),
		Goal:      goal.StringFixed(2),
		Milestone: milestone,
	})
	if err != nil {
		return Message{}, err
	}
	return Message{To: to, Subject: fmt.Sprintf("%s reached %d%% funding!", title, milestone), HTML: html}, nil
}

// TestEmail 管理员检查邮件配置时发给自己
func TestEmail(to, name string) (Message, error) {
	html, err := render(testTmpl, templateData{Name: displayName(name)})
	if err != nil {
		return Message{}, err
	}
	return Message{To: to, Subject: "CrowdFundIn email configuration test", HTML: html}, nil
}
