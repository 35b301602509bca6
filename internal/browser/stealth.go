package browser

// stealthScript runs before any page script in every new document. It hides
// the usual headless-automation fingerprints Meet checks before admitting a
// guest.
const stealthScript = `(() => {
	Object.defineProperty(navigator, 'webdriver', { get: () => undefined });

	Object.defineProperty(navigator, 'plugins', {
		get: () => [
			{ name: 'Chrome PDF Plugin', filename: 'internal-pdf-viewer', description: 'Portable Document Format' },
			{ name: 'Chrome PDF Viewer', filename: 'mhjfbmdgcfjbbpaeojofohoefgiehjai', description: '' },
			{ name: 'Native Client', filename: 'internal-nacl-plugin', description: '' },
		],
	});

	Object.defineProperty(navigator, 'languages', { get: () => ['en-US', 'en'] });

	window.chrome = window.chrome || { runtime: {} };

	if (navigator.mediaDevices && navigator.mediaDevices.enumerateDevices) {
		const enumerate = navigator.mediaDevices.enumerateDevices.bind(navigator.mediaDevices);
		navigator.mediaDevices.enumerateDevices = async () => {
			const devices = await enumerate();
			if (devices.length > 0) return devices;
			return [
				{ deviceId: 'default', kind: 'audioinput', label: 'Default Microphone', groupId: 'default' },
				{ deviceId: 'default', kind: 'videoinput', label: 'Default Camera', groupId: 'default' },
				{ deviceId: 'default', kind: 'audiooutput', label: 'Default Speaker', groupId: 'default' },
			];
		};
	}

	if (navigator.permissions && navigator.permissions.query) {
		const query = navigator.permissions.query.bind(navigator.permissions);
		navigator.permissions.query = (params) => {
			const name = params && params.name;
			if (name === 'notifications' || name === 'camera' || name === 'microphone') {
				return Promise.resolve({ state: 'granted', onchange: null });
			}
			return query(params);
		};
	}
})();`
