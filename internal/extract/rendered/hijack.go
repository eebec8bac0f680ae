package rendered

import (
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// mountHijack installs the resource-blocking router a rendered extractor
// uses for every navigation on its page: image/stylesheet/font/media
// requests and known tracker hosts are failed outright, everything else
// passes through unmodified. Grounded on the retrieval pack's go-rod
// hijack-router usage (other_examples' purify scraper), adapted to a fixed
// deny-list instead of a per-request option struct since shop config has no
// per-request override surface.
func mountHijack(router *rod.HijackRouter) {
	router.MustAdd("*", func(ctx *rod.Hijack) {
		if blockedResourceTypes[ctx.Request.Type()] || isTrackerHost(ctx.Request.URL().Host) {
			ctx.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		ctx.ContinueRequest(&proto.FetchContinueRequest{})
	})
}

func isTrackerHost(host string) bool {
	host = strings.ToLower(host)
	for _, tracker := range trackerHosts {
		if host == tracker || strings.HasSuffix(host, "."+tracker) {
			return true
		}
	}
	return false
}
