package command

// cmdSub handles SUB, per spec.md §4.9: subscribe the calling session
// to a comma-separated list of keys (including the MONITOR/NODE/
// NODE_LITE special channels).
func (p *Processor) cmdSub(args, sid string) string {
	sess, ok := p.sessionFor(sid)
	if !ok {
		return "ERROR: Unknown session"
	}
	keys := splitCSV(args)
	if len(keys) == 0 {
		return "ERROR: No keys given to subscribe"
	}
	p.Broker.Subscribe(sess, keys...)
	return "OK"
}

// cmdUnsub handles UNSUB.
func (p *Processor) cmdUnsub(args, sid string) string {
	sess, ok := p.sessionFor(sid)
	if !ok {
		return "ERROR: Unknown session"
	}
	keys := splitCSV(args)
	if len(keys) == 0 {
		return "ERROR: No keys given to unsubscribe"
	}
	p.Broker.Unsubscribe(sess, keys...)
	return "OK"
}

// cmdSublist handles SUBLIST, listing every key and its subscriber
// session ids.
func (p *Processor) cmdSublist(args, sid string) string {
	return jsonEncode(p.Broker.List())
}
